package unsubscribe

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	executorName   = "ActionExecutor"
	executorTracer = "unsubscribe.executor"

	CustomOptionSelector     = "div[role=option], .option, li"
	SubmitCandidatesSelector = "button, input[type=submit], input[type=button]"

	PlaceholderText   = "N/A"
	PlaceholderReason = "No longer interested in these emails."
)

var submitLabelPattern = regexp.MustCompile(`(?i)submit|save|unsubscribe|update|confirm|continue|done|apply|yes`)

// Executor applies an action plan to one frame. Individual failures are
// logged and skipped.
type Executor struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	evidence  *Evidence
	clickWait time.Duration
}

func NewExecutor(logger *zap.Logger, evidence *Evidence, clickWait time.Duration) *Executor {
	return &Executor{
		logger:    logger.With(zap.String(logg.Layer, executorName)),
		tracer:    otel.Tracer(executorTracer),
		evidence:  evidence,
		clickWait: clickWait,
	}
}

// Execute runs plan in order against frame, then fills still-empty required
// fields and clicks the first submit-like control. page is used for waits and
// screenshots.
func (e *Executor) Execute(ctx context.Context, page ports.Page, frame ports.Frame, plan []entity.ActionSpec, userEmail string) (report entity.ExecutionReport) {
	const op = "Execute"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op,
		attribute.Int("actions", len(plan)))
	defer func() {
		step.SetAttributes(
			attribute.Int("performed", report.Performed),
			attribute.Int("skipped", report.Skipped),
			attribute.Int("failed", report.Failed),
		)
		step.End(nil)
	}()

	report.Planned = len(plan)

	for i, action := range plan {
		if ctx.Err() != nil {
			logger.Warn("Execution cancelled", zap.Int("remaining", len(plan)-i))

			return report
		}

		actionLogger := logger.With(
			zap.String(logg.Action, string(action.Kind)),
			zap.String(logg.Selector, action.Selector),
		)

		el, err := frame.QuerySelector(action.Selector)
		if err != nil || el == nil {
			actionLogger.Warn("Element not found, skipping", zap.Error(err))
			report.Skipped++

			continue
		}

		if err := e.apply(page, frame, el, action); err != nil {
			actionLogger.Warn("Action failed", zap.Error(apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaSelector: action.Selector,
				apperr.MetaStage:    apperr.StageExecution,
			})))
			report.Failed++

			continue
		}

		actionLogger.Debug("Action performed")
		report.Performed++
	}

	report.Filled = e.fillRequired(frame, userEmail, logger)
	report.Submitted = e.submit(page, frame, logger)

	return report
}

func (e *Executor) apply(page ports.Page, frame ports.Frame, el ports.Element, action entity.ActionSpec) error {
	switch action.Kind {
	case entity.ActionFill:
		return e.fill(frame, el, action.Value)
	case entity.ActionCheck:
		checked, err := el.IsChecked()
		if err == nil && checked {
			return nil
		}

		return el.Check()
	case entity.ActionClick:
		return e.click(page, el, "ai-click")
	}

	return nil
}

// fill sets value on native inputs. A <select> gets its first non-empty
// option whatever value says; anything else is treated as a custom dropdown.
func (e *Executor) fill(frame ports.Frame, el ports.Element, value string) error {
	tag, err := el.TagName()
	if err != nil {
		return err
	}

	switch tag {
	case "select":
		options, err := el.OptionValues()
		if err != nil {
			return err
		}

		for _, option := range options {
			if option != "" {
				return el.SelectOption(option)
			}
		}

		e.logger.Debug("Select has no usable option")

		return nil
	case "input", "textarea":
		return el.Fill(value)
	default:
		if err := el.Click(); err != nil {
			return err
		}

		option, err := frame.QuerySelector(CustomOptionSelector)
		if err != nil || option == nil {
			e.logger.Debug("No dropdown option visible", zap.Error(err))

			return err
		}

		return option.Click()
	}
}

func (e *Executor) click(page ports.Page, el ports.Element, label string) error {
	mark := markBeforeClick(page)

	if err := el.Click(); err != nil {
		return err
	}

	waitAfterClick(page, mark, e.clickWait)
	e.evidence.Screenshot(page, label)

	return nil
}

func (e *Executor) fillRequired(frame ports.Frame, userEmail string, logger *zap.Logger) int {
	raw, err := frame.Evaluate(browser.RequiredFieldsScript)
	if err != nil {
		logger.Debug("Required-field scan failed", zap.Error(err))

		return 0
	}

	filled := 0

	for _, field := range browser.ParseRequiredFields(raw) {
		el, err := frame.QuerySelector(field.Selector)
		if err != nil || el == nil {
			continue
		}

		if err := fillRequiredField(el, field, userEmail); err != nil {
			logger.Debug("Required field left empty", zap.String(logg.Selector, field.Selector), zap.Error(err))

			continue
		}

		filled++
	}

	if filled > 0 {
		logger.Info("Filled required fields", zap.Int("count", filled))
	}

	return filled
}

func fillRequiredField(el ports.Element, field browser.RequiredField, userEmail string) error {
	switch field.Tag {
	case "select":
		options, err := el.OptionValues()
		if err != nil {
			return err
		}

		if len(options) < 2 {
			return nil
		}

		return el.SelectOption(options[1])
	case "textarea":
		return el.Fill(PlaceholderReason)
	}

	switch field.Type {
	case "email":
		return el.Fill(userEmail)
	case "checkbox", "radio":
		return el.Check()
	default:
		return el.Fill(PlaceholderText)
	}
}

func (e *Executor) submit(page ports.Page, frame ports.Frame, logger *zap.Logger) bool {
	candidates, err := frame.QuerySelectorAll(SubmitCandidatesSelector)
	if err != nil {
		logger.Debug("Submit scan failed", zap.Error(err))

		return false
	}

	for _, candidate := range candidates {
		label := controlLabel(candidate)
		if !submitLabelPattern.MatchString(label) {
			continue
		}

		if err := e.click(page, candidate, "ai-submit"); err != nil {
			logger.Debug("Submit click failed", zap.String("label", label), zap.Error(err))

			continue
		}

		logger.Info("Submitted form", zap.String("label", label))

		return true
	}

	return false
}

func controlLabel(el ports.Element) string {
	if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}

	if value, ok, err := el.Attribute("value"); err == nil && ok {
		return strings.TrimSpace(value)
	}

	return ""
}
