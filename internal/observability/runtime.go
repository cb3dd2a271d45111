package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers for the identity service process.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider

	// stops run in reverse start order.
	stops []namedStop
}

type namedStop struct {
	signal string
	stop   func(context.Context) error
}

// InitRuntime starts logs, metrics and traces in that order. If a later
// signal fails to start, the ones already running are shut down.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	lp, err := InitLogs(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if lp != nil {
		rt.LoggerProvider = lp
		rt.stops = append(rt.stops, namedStop{signal: "logs", stop: lp.Shutdown})
	}

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	rt.MeterProvider = mp
	rt.stops = append(rt.stops, namedStop{signal: "metrics", stop: mp.Shutdown})

	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	rt.TracerProvider = tp
	rt.stops = append(rt.stops, namedStop{signal: "traces", stop: tp.Shutdown})

	return rt, nil
}

// Shutdown stops the providers in reverse start order. It is safe to call
// more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.stops) - 1; i >= 0; i-- {
		s := r.stops[i]
		if err := s.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown otel %s: %w", s.signal, err))
		}
	}
	r.stops = nil
	return errors.Join(errs...)
}
