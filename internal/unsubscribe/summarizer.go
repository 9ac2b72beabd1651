package unsubscribe

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	summarizerName   = "PageSummarizer"
	summarizerTracer = "unsubscribe.summarizer"
)

// Summarizer reduces a page to prompt-sized text.
type Summarizer struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	htmlLimit int
}

func NewSummarizer(logger *zap.Logger, htmlLimit int) *Summarizer {
	return &Summarizer{
		logger:    logger.With(zap.String(logg.Layer, summarizerName)),
		tracer:    otel.Tracer(summarizerTracer),
		htmlLimit: htmlLimit,
	}
}

func FormatElement(el entity.PageElementSummary) string {
	return fmt.Sprintf(`%s[id=%q][name=%q][type=%q][class=%q][label=%q]`,
		el.Tag, el.ID, el.Name, el.Type, el.CSSClass, el.Label)
}

// Structured emits one descriptor line per form-relevant element of frame.
func (s *Summarizer) Structured(ctx context.Context, frame ports.Frame) (summary string, err error) {
	const op = "Structured"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	raw, err := frame.Evaluate(browser.ElementSummaryScript)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "summary_script_failed",
			apperr.MetaStage:  apperr.StageSummary,
		})
	}

	elements := browser.ParseElementSummaries(raw)
	lines := make([]string, 0, len(elements))

	for _, el := range elements {
		lines = append(lines, FormatElement(el))
	}

	step.SetAttributes(attribute.Int("elements", len(lines)))
	logger.Debug("Page summarized", zap.Int("elements", len(lines)))

	return strings.Join(lines, "\n"), nil
}

// RawHTML returns the document markup without scripts and styles, following
// into the embedded data iframe when there is one, cut at the size ceiling.
func (s *Summarizer) RawHTML(ctx context.Context, page ports.Page) (summary string, err error) {
	const op = "RawHTML"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	html, nested, err := page.DataFrameHTML()
	if err != nil || !nested {
		html, err = page.Content()
	}

	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "content_failed",
			apperr.MetaStage:  apperr.StageSummary,
		})
	}

	cleaned, err := stripNoise(html)
	if err != nil {
		logger.Debug("HTML cleanup failed, using raw markup", zap.Error(err))

		cleaned = html
	}

	summary = truncate(cleaned, s.htmlLimit)
	step.SetAttributes(attribute.Bool("nested", nested), attribute.Int("length", len(summary)))

	return summary, nil
}

func stripNoise(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, svg, link, meta").Remove()

	return goquery.OuterHtml(doc.Selection)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

// visibleText returns the body text of an HTML document.
func visibleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}
