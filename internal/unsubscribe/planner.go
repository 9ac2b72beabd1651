package unsubscribe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/metrics"
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
	plannerName   = "PlanGenerator"
	plannerTracer = "unsubscribe.planner"
)

const promptTemplate = `You are automating an email newsletter unsubscribe form.

Below is a list of the form elements found on the page. Return the actions that:
1. Put the subscriber's email address %[1]s into the email field.
2. Choose any available option in every dropdown.
3. Fill free-text fields such as a reason with a short neutral sentence.
4. Check every opt-out or unsubscribe checkbox.
5. Click the final submit or unsubscribe button.

For a native <select> give a "value". For a custom dropdown (for example a <div>)
first "click" the trigger, then "click" one of its options.

Respond with a JSON array only, shaped like:
[
  { "selector": "input#email", "value": "%[1]s" },
  { "selector": "select#reason", "value": "" },
  { "selector": "textarea#feedback", "value": "Not interested anymore" },
  { "selector": "input.opt-out", "action": "check" },
  { "selector": "button#unsubscribe", "action": "click" }
]

Use only selectors that match the elements listed. No explanations.

Form elements:
-----
%[2]s
-----
`

// BuildPrompt renders the planning prompt. The same inputs always give the
// same prompt.
func BuildPrompt(summary, userEmail string) string {
	return fmt.Sprintf(promptTemplate, userEmail, summary)
}

type planEntry struct {
	Selector string          `json:"selector"`
	Value    json.RawMessage `json:"value"`
	Action   string          `json:"action"`
}

// ParsePlan extracts the JSON array between the first '[' and the last ']'
// of text. Entries that are not objects, have no selector, or match none of
// the fill/check/click shapes are dropped. ok is false when no array could be
// parsed at all.
func ParsePlan(text string) (plan []entity.ActionSpec, ok bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")

	if start == -1 || end <= start {
		return nil, false
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}

	plan = make([]entity.ActionSpec, 0, len(raw))

	for _, item := range raw {
		var entry planEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}

		if spec, valid := entry.toSpec(); valid {
			plan = append(plan, spec)
		}
	}

	return plan, true
}

func (e planEntry) toSpec() (entity.ActionSpec, bool) {
	selector := strings.TrimSpace(e.Selector)
	if selector == "" {
		return entity.ActionSpec{}, false
	}

	value, hasValue := e.value()

	switch entity.ActionKind(strings.ToLower(strings.TrimSpace(e.Action))) {
	case entity.ActionFill:
		return entity.Fill(selector, value), true
	case entity.ActionCheck:
		return entity.Check(selector), true
	case entity.ActionClick:
		return entity.Click(selector), true
	}

	if hasValue {
		return entity.Fill(selector, value), true
	}

	return entity.ActionSpec{}, false
}

func (e planEntry) value() (string, bool) {
	raw := strings.TrimSpace(string(e.Value))
	if raw == "" || raw == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(e.Value, &s); err == nil {
		return s, true
	}

	return raw, true
}

// Planner turns a page summary into an action plan through the generative
// client.
type Planner struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	client  ports.GenerativeClient
	metrics *metrics.Recorder
}

func NewPlanner(logger *zap.Logger, client ports.GenerativeClient, recorder *metrics.Recorder) *Planner {
	return &Planner{
		logger:  logger.With(zap.String(logg.Layer, plannerName)),
		tracer:  otel.Tracer(plannerTracer),
		client:  client,
		metrics: recorder,
	}
}

// Plan returns nil when no usable plan is available. Service failures are
// logged and recorded on the span, never returned.
func (p *Planner) Plan(ctx context.Context, summary, userEmail string) []entity.ActionSpec {
	const op = "Plan"
	logger := p.logger.With(zap.String(logg.Operation, op))

	var unavailable error

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op,
		attribute.Int("summary_length", len(summary)))
	defer func() {
		step.End(unavailable)
	}()

	if strings.TrimSpace(summary) == "" {
		logger.Info("Nothing to plan: page has no form elements")

		return nil
	}

	text, err := p.client.GenerateContent(ctx, BuildPrompt(summary, userEmail))
	if err != nil {
		unavailable = apperr.Wrap(op, apperr.CodePlanningUnavailable, err, map[string]any{
			apperr.MetaReason: "generate_failed",
			apperr.MetaStage:  apperr.StagePlanning,
		})
		logger.Warn("Planning unavailable", zap.Error(err))

		return nil
	}

	plan, ok := ParsePlan(text)
	if !ok {
		unavailable = apperr.WrapErrorWithReason(op, apperr.CodePlanningUnavailable, "unparseable_plan")
		logger.Warn("AI response holds no JSON array", zap.Int("length", len(text)))

		return nil
	}

	p.metrics.RecordPlan(ctx, len(plan))
	step.SetAttributes(attribute.Int("actions", len(plan)))

	if len(plan) == 0 {
		logger.Info("AI returned no usable actions")

		return nil
	}

	logger.Info("Plan generated", zap.Int("actions", len(plan)))

	return plan
}
