package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

type AppMetrics struct {
	authFlowCounter          metric.Int64Counter
	authReqDuration          metric.Float64Histogram
	accessGateCounter        metric.Int64Counter
	escalationCounter        metric.Int64Counter
	adminMutationCounter     metric.Int64Counter
	adminListCacheEvents     metric.Int64Counter
	adminListCacheEntryAge   metric.Float64Histogram
	adminListReqDuration     metric.Float64Histogram
	adminListPageSize        metric.Float64Histogram
	userProfileCounter       metric.Int64Counter
	notificationCounter      metric.Int64Counter
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
	repositoryOpsCounter     metric.Int64Counter
	databaseStartupCounter   metric.Int64Counter
	databaseStartupDuration  metric.Float64Histogram
	toolCommandRuns          metric.Int64Counter
	toolCommandDuration      metric.Float64Histogram
	middlewareEvents         metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter("carspot-identity-service"))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var firstErr error
	counter := func(name string) metric.Int64Counter {
		c, err := meter.Int64Counter(name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create counter %s: %w", name, err)
		}
		return c
	}
	hist := func(name, unit, description string) metric.Float64Histogram {
		opts := []metric.Float64HistogramOption{metric.WithDescription(description)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		h, err := meter.Float64Histogram(name, opts...)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("create histogram %s: %w", name, err)
		}
		return h
	}

	m := &AppMetrics{
		authFlowCounter:          counter("auth.flow.events"),
		authReqDuration:          hist("auth.request.duration", "s", "Duration of auth endpoint requests in seconds"),
		accessGateCounter:        counter("auth.access_gate.decisions"),
		escalationCounter:        counter("admin.escalation.decisions"),
		adminMutationCounter:     counter("admin.account.mutations"),
		adminListCacheEvents:     counter("admin.list.cache.events"),
		adminListCacheEntryAge:   hist("admin.list.cache.entry_age", "s", "Age of cached admin list entries when served"),
		adminListReqDuration:     hist("admin.list.request.duration", "s", "Duration of admin list endpoint requests in seconds"),
		adminListPageSize:        hist("admin.list.page_size", "", "Requested page size for admin list endpoints"),
		userProfileCounter:       counter("user.profile.events"),
		notificationCounter:      counter("notification.delivery.events"),
		healthCheckResultCounter: counter("health.check.results"),
		healthCheckDuration:      hist("health.check.duration", "s", "Duration of health dependency checks in seconds"),
		repositoryOpsCounter:     counter("repository.operations"),
		databaseStartupCounter:   counter("database.startup.events"),
		databaseStartupDuration:  hist("database.startup.duration", "s", "Duration of database startup stages in seconds"),
		toolCommandRuns:          counter("tool.command.runs"),
		toolCommandDuration:      hist("tool.command.duration", "s", "Duration of tool commands in seconds"),
		middlewareEvents:         counter("http.middleware.validation.events"),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordAuthFlowEvent counts register, login, password reset and super-admin
// verification outcomes.
func RecordAuthFlowEvent(ctx context.Context, flow, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAccessGateDecision(ctx context.Context, capability, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.accessGateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("outcome", outcome),
	))
}

func RecordEscalationDecision(ctx context.Context, kind, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.escalationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordAdminAccountMutation(ctx context.Context, action, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.adminMutationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

func RecordAdminListCacheEvent(ctx context.Context, endpoint, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.adminListCacheEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func RecordAdminListCacheEntryAge(ctx context.Context, endpoint string, age time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.adminListCacheEntryAge.Record(ctx, age.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

func RecordAdminListRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.adminListReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAdminListPageSize(ctx context.Context, endpoint string, pageSize int) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.adminListPageSize.Record(ctx, float64(pageSize), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

func RecordUserProfileEvent(ctx context.Context, action, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.userProfileCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordNotificationDelivery(ctx context.Context, channel, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}

func RecordRepositoryOperation(ctx context.Context, repo, operation, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func RecordDatabaseStartupEvent(ctx context.Context, stage, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.databaseStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, stage string, duration time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.databaseStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

func RecordToolCommandRun(ctx context.Context, tool, command, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("status", status),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, command, status string, duration time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("status", status),
	))
}

func RecordMiddlewareValidationEvent(ctx context.Context, middleware, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.middlewareEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("middleware", middleware),
		attribute.String("outcome", outcome),
	))
}
