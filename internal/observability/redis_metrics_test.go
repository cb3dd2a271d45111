package observability

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRedisMetricsHookCountsCommandsAndKeyspace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	hook, err := newRedisMetricsHook(provider.Meter("redis-test"), client.PoolStats)
	if err != nil {
		t.Fatalf("create hook: %v", err)
	}
	client.AddHook(hook)

	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := client.Get(ctx, "k").Result(); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := client.Get(ctx, "missing").Err(); err != redis.Nil {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
	pipe := client.TxPipeline()
	pipe.Set(ctx, "a", "1", 0)
	pipe.Set(ctx, "b", "2", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	if totals["redis.keyspace.lookups"] != 2 {
		t.Fatalf("expected one hit and one miss, got %d lookups", totals["redis.keyspace.lookups"])
	}
	if totals["redis.command.total"] < 5 {
		t.Fatalf("expected pipelined commands counted individually, got %d", totals["redis.command.total"])
	}
}

func TestRedisCommandStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{redis.Nil, "miss"},
		{context.DeadlineExceeded, "error"},
	}
	for _, tc := range tests {
		if got := redisCommandStatus(tc.err); got != tc.want {
			t.Fatalf("redisCommandStatus(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
