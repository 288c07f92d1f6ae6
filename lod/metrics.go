package lod

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tsinghua-fib-lab/scenario-player/lod"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// metrics 细节层次调节的指标
// 说明：使用全局OTel meter，未配置时为no-op
type metrics struct {
	tierChanges      metric.Int64Counter
	instancingToggle metric.Int64Counter
	level            metric.Int64ObservableGauge
}

func newMetrics(g *Governor) (*metrics, error) {
	m := meter()
	res := &metrics{}
	var err error

	res.tierChanges, err = m.Int64Counter(
		"lod.tier.changes",
		metric.WithDescription("Total LOD tier changes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tier change counter: %w", err)
	}

	res.instancingToggle, err = m.Int64Counter(
		"lod.instancing.toggles",
		metric.WithDescription("Total instancing on/off switches"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating instancing counter: %w", err)
	}

	res.level, err = m.Int64ObservableGauge(
		"lod.level",
		metric.WithDescription("Current global LOD tier (0=low, 1=medium, 2=high)"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating level gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(res.level, int64(g.current.Load()))
			return nil
		},
		res.level,
	)
	if err != nil {
		return nil, fmt.Errorf("registering level callback: %w", err)
	}
	return res, nil
}

func (m *metrics) recordTierChange(from, to Level) {
	m.tierChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *metrics) recordInstancing(enabled bool) {
	m.instancingToggle.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("enabled", enabled)))
}
