package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var redisInstrumentationOnce sync.Once

// InstrumentRedisClient installs command and pool metrics on the account list
// cache client. Only the first call per process has any effect.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	redisInstrumentationOnce.Do(func() {
		hook, err := newRedisMetricsHook(otel.Meter("carspot-identity-service"), client.PoolStats)
		if err != nil {
			logger.Warn("redis observability instrumentation disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis observability instrumentation enabled")
	})
}

type redisMetricsHook struct {
	commands metric.Int64Counter
	latency  metric.Float64Histogram
	keyspace metric.Int64Counter
}

func newRedisMetricsHook(meter metric.Meter, poolStats func() *redis.PoolStats) (*redisMetricsHook, error) {
	commands, err := meter.Int64Counter("redis.command.total", metric.WithDescription("Redis commands executed by status"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("redis.command.duration", metric.WithUnit("s"), metric.WithDescription("Redis command latency in seconds"))
	if err != nil {
		return nil, err
	}
	keyspace, err := meter.Int64Counter("redis.keyspace.lookups", metric.WithDescription("Redis key lookups by hit or miss"))
	if err != nil {
		return nil, err
	}
	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation", metric.WithUnit("1"), metric.WithDescription("Share of pooled connections in use"))
	if err != nil {
		return nil, err
	}
	if poolStats != nil {
		_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			stats := poolStats()
			if stats == nil || stats.TotalConns == 0 {
				return nil
			}
			used := float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
			o.ObserveFloat64(saturation, min(max(used, 0), 1))
			return nil
		}, saturation)
		if err != nil {
			return nil, err
		}
	}
	return &redisMetricsHook{commands: commands, latency: latency, keyspace: keyspace}, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd)
		h.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("command", strings.ToLower(cmd.Name())),
			attribute.String("status", redisCommandStatus(err)),
		))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			h.observe(ctx, cmd)
		}
		h.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("command", "pipeline"),
			attribute.String("status", redisCommandStatus(err)),
		))
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, cmd redis.Cmder) {
	name := strings.ToLower(cmd.Name())
	h.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("status", redisCommandStatus(cmd.Err())),
	))
	if outcome, ok := keyspaceOutcome(name, cmd.Err()); ok {
		h.keyspace.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func redisCommandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "timeout"
	default:
		return "error"
	}
}

// keyspaceOutcome classifies single-key reads; the list cache only issues GET.
func keyspaceOutcome(command string, err error) (string, bool) {
	if command != "get" {
		return "", false
	}
	switch {
	case err == nil:
		return "hit", true
	case errors.Is(err, redis.Nil):
		return "miss", true
	default:
		return "", false
	}
}
