package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "crewd"

// Metrics holds the crew pipeline instruments. All record methods accept a
// nil receiver.
type Metrics struct {
	Orchestrations   metric.Int64Counter
	BudgetRejections metric.Int64Counter
	LLMCalls         metric.Int64Counter
	APICallsSaved    metric.Int64Counter
	RunCost          metric.Float64Histogram
	RunDuration      metric.Float64Histogram
	SavingsPercent   metric.Float64Histogram
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter(meterName))
}

// NewMetricsFromMeter creates all instruments on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Orchestrations, err = meter.Int64Counter("crew.orchestrations",
		metric.WithDescription("Number of orchestrations by complexity"))
	if err != nil {
		return nil, err
	}

	m.BudgetRejections, err = meter.Int64Counter("crew.budget.rejections",
		metric.WithDescription("Number of runs rejected by a budget ceiling"))
	if err != nil {
		return nil, err
	}

	m.LLMCalls, err = meter.Int64Counter("crew.llm.calls",
		metric.WithDescription("Number of upstream chat completion calls"))
	if err != nil {
		return nil, err
	}

	m.APICallsSaved, err = meter.Int64Counter("crew.batch.api_calls_saved",
		metric.WithDescription("Upstream calls avoided by batching"))
	if err != nil {
		return nil, err
	}

	m.RunCost, err = meter.Float64Histogram("crew.run.cost_usd",
		metric.WithDescription("Actual run cost in USD"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("crew.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SavingsPercent, err = meter.Float64Histogram("crew.optimizer.savings_percent",
		metric.WithDescription("Optimizer savings against the premium baseline"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOrchestration counts one orchestration and its savings.
func (m *Metrics) RecordOrchestration(ctx context.Context, complexity string, savingsPct float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("complexity", complexity))
	m.Orchestrations.Add(ctx, 1, attrs)
	m.SavingsPercent.Record(ctx, savingsPct, attrs)
}

// RecordBudgetRejection counts a rejected run.
func (m *Metrics) RecordBudgetRejection(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.BudgetRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("limit", kind)))
}

// RecordLLMCall counts one upstream call.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, batched, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.LLMCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("batched", batched),
		attribute.String("status", status),
	))
}

// RecordRun records the cost, duration and batching savings of a finished run.
func (m *Metrics) RecordRun(ctx context.Context, costUSD, seconds float64, callsSaved int, status string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.RunCost.Record(ctx, costUSD, attrs)
	m.RunDuration.Record(ctx, seconds, attrs)
	if callsSaved > 0 {
		m.APICallsSaved.Add(ctx, int64(callsSaved))
	}
}
