package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
)

type Notification struct {
	To      string
	Subject string
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "notification issued",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

type SMTPConfig struct {
	Host       string
	Username   string
	Password   string
	From       string
	SkipVerify bool
}

type SMTPNotifier struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	u := &url.URL{Scheme: "smtps", User: url.UserPassword(cfg.Username, cfg.Password), Host: cfg.Host}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse mail from address: %w", err)
	}
	// #nosec G402 -- opt-in for local mail catchers with self-signed certs.
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipVerify}
	client, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, mailName: from.Name, mailAddress: from.Address}, nil
}

func (n *SMTPNotifier) Send(_ context.Context, msg Notification) error {
	m := goemail.NewMessage(n.mailAddress, msg.Subject, msg.Body)
	m.AddTo(msg.To)
	m.SetName(n.mailName)
	return n.client.Send(m)
}
