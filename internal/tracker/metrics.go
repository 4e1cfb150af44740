package tracker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vk/flowgrid/internal/model"
)

const meterName = "github.com/vk/flowgrid/internal/tracker"

type metrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	active   metric.Int64UpDownCounter
	nodeTime metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error
	if m.started, err = meter.Int64Counter("flowgrid.runs.started",
		metric.WithDescription("Runs started."), metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("creating runs.started counter: %w", err)
	}
	if m.finished, err = meter.Int64Counter("flowgrid.runs.finished",
		metric.WithDescription("Runs that reached a terminal status."), metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("creating runs.finished counter: %w", err)
	}
	if m.active, err = meter.Int64UpDownCounter("flowgrid.runs.active",
		metric.WithDescription("Runs currently executing."), metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("creating runs.active counter: %w", err)
	}
	if m.nodeTime, err = meter.Float64Histogram("flowgrid.node.duration",
		metric.WithDescription("Duration of node behavior invocations."), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating node.duration histogram: %w", err)
	}
	return m, nil
}

func (m *metrics) runStarted(ctx context.Context, workflowID string) {
	attrs := metric.WithAttributes(attribute.String("workflow.id", workflowID))
	m.started.Add(ctx, 1, attrs)
	m.active.Add(ctx, 1, attrs)
}

func (m *metrics) runFinished(ctx context.Context, workflowID string, status model.RunStatus) {
	m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("workflow.id", workflowID)))
	m.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("run.status", string(status)),
	))
}

func (m *metrics) nodeFinished(ctx context.Context, nodeType string, success bool, elapsed time.Duration) {
	m.nodeTime.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("node.type", nodeType),
		attribute.Bool("node.success", success),
	))
}
