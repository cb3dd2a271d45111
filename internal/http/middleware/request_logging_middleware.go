package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
)

// sensitivePathParams name route parameters that carry credentials, such as
// the password reset token.
var sensitivePathParams = map[string]struct{}{
	"token": {},
}

type accountSlotKey struct{}

// accountSlot lets AccessGate, which runs deeper in the chain, hand the
// authenticated account id back to the request logger.
type accountSlot struct {
	id uint
}

func rememberAccount(ctx context.Context, account *domain.Account) {
	if slot, ok := ctx.Value(accountSlotKey{}).(*accountSlot); ok {
		slot.id = account.ID
	}
}

// StructuredRequestLogger emits one structured log line per request. 5xx log at
// error, 4xx at warn.
func StructuredRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		slot := &accountSlot{}

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), accountSlotKey{}, slot)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		routePattern := ""
		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			routePattern = routeCtx.RoutePattern()
			path = redactPathParams(path, routeCtx)
		}

		attrs := []any{
			"method", r.Method,
			"path", path,
			"route", routePattern,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"client_ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if slot.id != 0 {
			attrs = append(attrs, "account_id", slot.id)
		}

		switch {
		case status >= http.StatusInternalServerError:
			slog.ErrorContext(r.Context(), "http.request", attrs...)
		case status >= http.StatusBadRequest:
			slog.WarnContext(r.Context(), "http.request", attrs...)
		default:
			slog.InfoContext(r.Context(), "http.request", attrs...)
		}
	})
}

func redactPathParams(path string, routeCtx *chi.Context) string {
	for i, key := range routeCtx.URLParams.Keys {
		if _, ok := sensitivePathParams[key]; !ok || i >= len(routeCtx.URLParams.Values) {
			continue
		}
		if v := routeCtx.URLParams.Values[i]; v != "" {
			path = strings.ReplaceAll(path, v, "{"+key+"}")
		}
	}
	return path
}
