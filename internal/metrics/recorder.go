package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "unsubscribe-agent"

const (
	attrStrategy = "strategy"
	attrResult   = "result"
	attrVendor   = "vendor"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
	ResultSkipped = "skipped"
)

// Recorder holds the otel instruments of the unsubscribe pipeline.
type Recorder struct {
	attemptsTotal   metric.Int64Counter
	attemptDuration metric.Float64Histogram
	captchaTotal    metric.Int64Counter
	captchaDuration metric.Float64Histogram
	planActions     metric.Int64Histogram
}

func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(meterName)
	r := &Recorder{}

	var err error

	r.attemptsTotal, err = meter.Int64Counter(
		"unsubscribe_attempts_total",
		metric.WithDescription("Unsubscribe attempts by winning strategy and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unsubscribe_attempts_total counter: %w", err)
	}

	r.attemptDuration, err = meter.Float64Histogram(
		"unsubscribe_attempt_duration_seconds",
		metric.WithDescription("Wall time of one unsubscribe attempt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 40, 80, 160),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unsubscribe_attempt_duration_seconds histogram: %w", err)
	}

	r.captchaTotal, err = meter.Int64Counter(
		"captcha_solves_total",
		metric.WithDescription("CAPTCHA resolution attempts by vendor and result"),
		metric.WithUnit("{solve}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha_solves_total counter: %w", err)
	}

	r.captchaDuration, err = meter.Float64Histogram(
		"captcha_solve_duration_seconds",
		metric.WithDescription("Time from task creation to solution or give-up"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(5, 10, 20, 40, 60, 90, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha_solve_duration_seconds histogram: %w", err)
	}

	r.planActions, err = meter.Int64Histogram(
		"plan_actions",
		metric.WithDescription("Number of valid actions in a generated plan"),
		metric.WithUnit("{action}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan_actions histogram: %w", err)
	}

	return r, nil
}

// NewNop returns a Recorder backed by a no-op provider.
func NewNop() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider())

	return r
}

func (r *Recorder) RecordAttempt(ctx context.Context, strategy string, success bool, elapsed time.Duration) {
	result := ResultFailure
	if success {
		result = ResultSuccess
	}

	attrs := metric.WithAttributes(
		attribute.String(attrStrategy, strategy),
		attribute.String(attrResult, result),
	)

	r.attemptsTotal.Add(ctx, 1, attrs)
	r.attemptDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (r *Recorder) RecordCaptcha(ctx context.Context, vendor, result string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrVendor, vendor),
		attribute.String(attrResult, result),
	)

	r.captchaTotal.Add(ctx, 1, attrs)
	r.captchaDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (r *Recorder) RecordPlan(ctx context.Context, actions int) {
	r.planActions.Record(ctx, int64(actions))
}
