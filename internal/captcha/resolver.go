package captcha

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/metrics"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	resolverName   = "ChallengeResolver"
	resolverTracer = "captcha.resolver"

	// FrameSelector matches the widget iframe of every supported vendor.
	FrameSelector = `iframe[src*="recaptcha"], iframe[src*="hcaptcha"], iframe[src*="captcha"]`
)

// injectTokenScript fills any hidden response textarea and appends a hidden
// field to the first form so native submission carries the token.
const injectTokenScript = `(token) => {
	document.querySelectorAll('textarea[name="g-recaptcha-response"], textarea[name="h-captcha-response"], #g-recaptcha-response, textarea[g-recaptcha-response]').forEach((el) => {
		el.value = token;
	});

	const form = document.querySelector('form');
	if (form) {
		const hidden = document.createElement('input');
		hidden.type = 'hidden';
		hidden.name = 'g-recaptcha-response';
		hidden.value = token;
		form.appendChild(hidden);
	}
}`

var (
	siteKeyPattern = regexp.MustCompile(`[?&#](?:k|sitekey)=([^&#]+)`)

	errNoSiteKey = errors.New("could not extract site key")
	errBudget    = errors.New("no solution within budget")
	errNoToken   = errors.New("solver returned an empty token")
)

type Resolver struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	solver       ports.CaptchaSolver
	metrics      *metrics.Recorder
	pollInterval time.Duration
	budget       time.Duration
}

type ResolverParams struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Solver  ports.CaptchaSolver
	Metrics *metrics.Recorder
}

func NewResolver(params ResolverParams) *Resolver {
	return &Resolver{
		logger:       params.Logger.With(zap.String(logg.Layer, resolverName)),
		tracer:       otel.Tracer(resolverTracer),
		solver:       params.Solver,
		metrics:      params.Metrics,
		pollInterval: params.Config.CaptchaConfig.PollInterval,
		budget:       params.Config.CaptchaConfig.Budget,
	}
}

func VendorOf(src string) entity.ChallengeVendor {
	lower := strings.ToLower(src)

	switch {
	case strings.Contains(lower, "hcaptcha"):
		return entity.VendorHCaptcha
	case strings.Contains(lower, "recaptcha"):
		return entity.VendorRecaptcha
	default:
		return entity.VendorGeneric
	}
}

func ExtractSiteKey(src string) (string, bool) {
	m := siteKeyPattern.FindStringSubmatch(src)
	if m == nil || m[1] == "" {
		return "", false
	}

	return m[1], true
}

// Resolve detects a CAPTCHA widget on page and, when one is present, solves
// and injects it. It returns (nil, nil) when the page has no challenge. Any
// returned error carries apperr.CodeChallengeUnresolved.
func (r *Resolver) Resolve(ctx context.Context, page ports.Page) (task *entity.ChallengeTask, err error) {
	const op = "Resolve"
	logger := r.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, page.URL()))

	ctx, step := tracing.StartSpan(ctx, r.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	frame, err := page.QuerySelector(FrameSelector)
	if err != nil {
		return nil, r.unresolved(op, err, "detect_failed", nil)
	}

	if frame == nil {
		logger.Debug("No CAPTCHA detected")

		return nil, nil
	}

	src, _, err := frame.Attribute("src")
	if err != nil {
		return nil, r.unresolved(op, err, "read_src_failed", nil)
	}

	task = &entity.ChallengeTask{
		Vendor:  VendorOf(src),
		PageURL: page.URL(),
		Status:  entity.ChallengePending,
	}

	step.SetAttributes(attribute.String("vendor", string(task.Vendor)))
	logger.Info("CAPTCHA iframe detected", zap.String("vendor", string(task.Vendor)))

	siteKey, ok := ExtractSiteKey(src)
	if !ok {
		task.Status = entity.ChallengeFailed

		return task, r.unresolved(op, errNoSiteKey, "no_site_key", task)
	}

	task.SiteKey = siteKey

	started := time.Now()
	result := metrics.ResultFailure

	defer func() {
		r.metrics.RecordCaptcha(ctx, string(task.Vendor), result, time.Since(started))
	}()

	// The budget covers the quota wait inside CreateTask as well as polling.
	solveCtx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	taskID, err := r.solver.CreateTask(solveCtx, *task)
	if err != nil {
		task.Status = entity.ChallengeFailed

		if solveCtx.Err() != nil {
			result = metrics.ResultTimeout
			err = errors.Join(errBudget, err)
		}

		return task, r.unresolved(op, err, "create_task_failed", task)
	}

	task.TaskID = taskID
	step.AddEvent("task created", attribute.String("task_id", taskID))

	token, err := r.poll(solveCtx, logger, taskID)
	if err != nil {
		task.Status = entity.ChallengeFailed

		if errors.Is(err, errBudget) {
			result = metrics.ResultTimeout
		}

		return task, r.unresolved(op, err, "poll_failed", task)
	}

	task.Status = entity.ChallengeReady
	task.SolutionToken = token

	if _, err = page.Evaluate(injectTokenScript, token); err != nil {
		return task, r.unresolved(op, err, "inject_failed", task)
	}

	result = metrics.ResultSuccess
	logger.Info("CAPTCHA solved", zap.Duration("elapsed", time.Since(started)))

	return task, nil
}

// poll asks for the task result every pollInterval until a token arrives or
// ctx, which carries the budget, is done.
func (r *Resolver) poll(ctx context.Context, logger *zap.Logger, taskID string) (string, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", errBudget
		case <-ticker.C:
		}

		status, token, err := r.solver.GetTaskResult(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return "", errBudget
			}

			return "", err
		}

		if status == entity.ChallengeReady {
			if token == "" {
				return "", errNoToken
			}

			return token, nil
		}

		logger.Debug("Waiting for CAPTCHA solution", zap.String(logg.TaskID, taskID))
	}
}

func (r *Resolver) unresolved(op string, err error, reason string, task *entity.ChallengeTask) error {
	meta := map[string]any{
		apperr.MetaReason: reason,
		apperr.MetaStage:  apperr.StageChallenge,
	}

	if task != nil {
		meta[apperr.MetaSiteKey] = task.SiteKey
		meta[apperr.MetaTaskID] = task.TaskID
	}

	return apperr.Wrap(op, apperr.CodeChallengeUnresolved, err, meta)
}
