package unsubscribe

import (
	"context"
	"fmt"
	"time"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	fallbackName   = "FallbackChain"
	fallbackTracer = "unsubscribe.fallback"

	RadioSelector        = `input[type='radio'][value*='unsubscribe' i], input[type='radio'][value*='all' i]`
	CheckboxSelector     = `input[type="checkbox"]`
	SubmitSelector       = `input[type='submit'], button[type='submit']`
	ConfirmationSelector = `button:has-text("yes"), button:has-text("confirm"), button:has-text("ok")`
	EnabledSelector      = `button:not([disabled]), a:not([disabled])`

	submitIdleTimeout = 10 * time.Second
)

var unsubscribeKeywords = []string{"unsubscribe", "opt out", "cancel", "stop emails"}

// KeywordSelectors lists the button then link selector for every keyword, in
// search order.
func KeywordSelectors() []string {
	selectors := make([]string, 0, 2*len(unsubscribeKeywords))

	for _, kw := range unsubscribeKeywords {
		selectors = append(selectors,
			fmt.Sprintf(`button:has-text(%q)`, kw),
			fmt.Sprintf(`a:has-text(%q)`, kw),
		)
	}

	return selectors
}

type strategyFunc func(ctx context.Context, page ports.Page, frame ports.Frame, logger *zap.Logger) bool

type namedStrategy struct {
	name entity.Strategy
	run  strategyFunc
}

// Fallback tries fixed heuristics in order and stops at the first one that
// acted on the page.
type Fallback struct {
	logger     *zap.Logger
	tracer     trace.Tracer
	delay      time.Duration
	strategies []namedStrategy
}

func NewFallback(logger *zap.Logger, delay time.Duration) *Fallback {
	f := &Fallback{
		logger: logger.With(zap.String(logg.Layer, fallbackName)),
		tracer: otel.Tracer(fallbackTracer),
		delay:  delay,
	}

	f.strategies = []namedStrategy{
		{name: entity.StrategyCheckboxRadioSubmit, run: f.checkboxRadioSubmit},
		{name: entity.StrategyButtonOrLink, run: f.buttonOrLink},
		{name: entity.StrategyConfirmationDialog, run: f.confirmation},
		{name: entity.StrategyDelayedAction, run: f.delayed},
	}

	return f
}

// Run returns the winning strategy, or StrategyNone.
func (f *Fallback) Run(ctx context.Context, page ports.Page, frame ports.Frame) (winner entity.Strategy) {
	const op = "Run"
	logger := f.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, f.tracer, logger, op)
	defer func() {
		step.SetAttributes(attribute.String("winner", winner.String()))
		step.End(nil)
	}()

	for _, s := range f.strategies {
		if ctx.Err() != nil {
			logger.Warn("Fallback cancelled", zap.Error(ctx.Err()))

			return entity.StrategyNone
		}

		strategyLogger := logger.With(zap.String(logg.Strategy, s.name.String()))

		if s.run(ctx, page, frame, strategyLogger) {
			strategyLogger.Info("Fallback strategy acted")
			step.AddEvent("strategy acted", attribute.String("strategy", s.name.String()))

			return s.name
		}

		strategyLogger.Debug("Fallback strategy found nothing to do")
	}

	return entity.StrategyNone
}

// checkboxRadioSubmit selects the unsubscribe radio and every unchecked box,
// then clicks submit. It has acted only once submit was clicked.
func (f *Fallback) checkboxRadioSubmit(_ context.Context, page ports.Page, frame ports.Frame, logger *zap.Logger) bool {
	if radio, err := frame.QuerySelector(RadioSelector); err == nil && radio != nil {
		if err := radio.Check(); err != nil {
			logger.Debug("Radio selection failed", zap.Error(err))
		}
	}

	boxes, err := frame.QuerySelectorAll(CheckboxSelector)
	if err != nil {
		logger.Debug("Checkbox scan failed", zap.Error(err))
	}

	for _, box := range boxes {
		if checked, err := box.IsChecked(); err == nil && checked {
			continue
		}

		if err := box.Check(); err != nil {
			logger.Debug("Checkbox check failed", zap.Error(err))
		}
	}

	submit, err := frame.QuerySelector(SubmitSelector)
	if err != nil || submit == nil {
		return false
	}

	if err := submit.Click(); err != nil {
		logger.Debug("Submit click failed", zap.Error(err))

		return false
	}

	if err := page.WaitForNetworkIdle(submitIdleTimeout); err != nil {
		logger.Debug("Network did not settle after submit", zap.Error(err))
	}

	return true
}

func (f *Fallback) buttonOrLink(_ context.Context, _ ports.Page, frame ports.Frame, logger *zap.Logger) bool {
	for _, selector := range KeywordSelectors() {
		if clickFirst(frame, selector, logger) {
			return true
		}
	}

	return false
}

func (f *Fallback) confirmation(_ context.Context, _ ports.Page, frame ports.Frame, logger *zap.Logger) bool {
	return clickFirst(frame, ConfirmationSelector, logger)
}

func (f *Fallback) delayed(ctx context.Context, _ ports.Page, frame ports.Frame, logger *zap.Logger) bool {
	if err := sleep(ctx, f.delay); err != nil {
		return false
	}

	return clickFirst(frame, EnabledSelector, logger)
}

func clickFirst(frame ports.Frame, selector string, logger *zap.Logger) bool {
	el, err := frame.QuerySelector(selector)
	if err != nil || el == nil {
		return false
	}

	if err := el.Click(); err != nil {
		logger.Debug("Click failed", zap.String(logg.Selector, selector), zap.Error(err))

		return false
	}

	return true
}
