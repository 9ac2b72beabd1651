package unsubscribe

import (
	"context"
	"fmt"
	"regexp"
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
	verifierName   = "OutcomeVerifier"
	verifierTracer = "unsubscribe.verifier"

	successSource = `unsubscribe(d)?|opt(ed)? out|removed|success|no longer`
)

var successPattern = regexp.MustCompile(`(?i)` + successSource)

// MatchSuccess returns the first success phrase found in text.
func MatchSuccess(text string) (string, bool) {
	match := successPattern.FindString(text)

	return match, match != ""
}

// Verifier decides the final outcome from the page text. A click only counts
// when a confirmation phrase follows it.
type Verifier struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	evidence *Evidence
	settle   time.Duration
}

func NewVerifier(logger *zap.Logger, evidence *Evidence, settle time.Duration) *Verifier {
	return &Verifier{
		logger:   logger.With(zap.String(logg.Layer, verifierName)),
		tracer:   otel.Tracer(verifierTracer),
		evidence: evidence,
		settle:   settle,
	}
}

// Verify inspects page after strategy ran. strategy is StrategyNone when
// nothing acted.
func (v *Verifier) Verify(ctx context.Context, page ports.Page, strategy entity.Strategy) (outcome entity.AttemptOutcome) {
	const op = "Verify"
	logger := v.logger.With(zap.String(logg.Operation, op), zap.String(logg.Strategy, strategy.String()))

	ctx, step := tracing.StartSpan(ctx, v.tracer, logger, op,
		attribute.String("strategy", strategy.String()))
	defer func() {
		step.SetAttributes(attribute.Bool("success", outcome.Success))
		step.End(nil)
	}()

	acted := strategy != entity.StrategyNone

	if acted {
		if err := sleep(ctx, v.settle); err != nil {
			logger.Debug("Settle wait interrupted", zap.Error(err))
		}

		outcome.EvidencePath = v.evidence.Screenshot(page, "confirmation")

		if phrase, ok := v.matchPage(page, logger); ok {
			outcome.Success = true
			outcome.Strategy = strategy
			outcome.Reason = fmt.Sprintf("Unsubscribed via %s (matched %q)", strategy, phrase)

			logger.Info("Confirmation found", zap.String("phrase", phrase))

			return outcome
		}
	}

	if phrase, ok := v.matchDataFrame(page, logger); ok {
		outcome.Success = true
		outcome.Strategy = entity.StrategyEmbeddedIframeSuccess
		outcome.Reason = fmt.Sprintf("Unsubscribed via embedded iframe success message (matched %q)", phrase)

		logger.Info("Confirmation found in embedded frame", zap.String("phrase", phrase))

		return outcome
	}

	if !acted {
		outcome.Reason = entity.ReasonNoStrategy
		outcome.EvidencePath = v.evidence.DumpHTML(page)

		logger.Warn("No action performed")

		return outcome
	}

	outcome.Strategy = strategy
	outcome.Reason = fmt.Sprintf("No confirmation detected after %s", strategy)

	logger.Warn("Action performed but no confirmation detected")

	return outcome
}

func (v *Verifier) matchPage(page ports.Page, logger *zap.Logger) (string, bool) {
	text, err := page.InnerText()
	if err != nil {
		logger.Debug("Failed to read page text", zap.Error(err))

		return "", false
	}

	return MatchSuccess(text)
}

func (v *Verifier) matchDataFrame(page ports.Page, logger *zap.Logger) (string, bool) {
	html, ok, err := page.DataFrameHTML()
	if err != nil || !ok {
		if err != nil {
			logger.Debug("Embedded frame unreadable", zap.Error(err))
		}

		return "", false
	}

	text, err := visibleText(html)
	if err != nil {
		logger.Debug("Embedded frame HTML unparsable", zap.Error(err))

		return "", false
	}

	return MatchSuccess(text)
}
