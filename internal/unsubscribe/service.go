package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/metrics"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	serviceName   = "UnsubscribeService"
	serviceTracer = "unsubscribe.service"
)

type State string

const (
	StateInit              State = "init"
	StateNavigated         State = "navigated"
	StateChallengeChecked  State = "challenge_checked"
	StateAIAttempted       State = "ai_attempted"
	StateFallbackAttempted State = "fallback_attempted"
	StateVerified          State = "verified"
	StateClosed            State = "closed"
)

var errInvalidTarget = errors.New("target must be an absolute http(s) URL")

type Service struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	launcher ports.BrowserLauncher
	resolver ports.ChallengeResolver
	metrics  *metrics.Recorder

	governor   *browser.Governor
	summarizer *Summarizer
	planner    *Planner
	executor   *Executor
	fallback   *Fallback
	verifier   *Verifier

	navigationTimeout  time.Duration
	networkIdleTimeout time.Duration
	summaryMode        string
	alwaysFallback     bool
}

type Params struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Launcher ports.BrowserLauncher
	Resolver ports.ChallengeResolver
	AI       ports.GenerativeClient
	Metrics  *metrics.Recorder
}

func NewService(params Params) *Service {
	cfg := params.Config.UnsubscribeConfig
	evidence := NewEvidence(cfg.EvidenceDir, params.Logger)

	return &Service{
		logger:   params.Logger.With(zap.String(logg.Layer, serviceName)),
		tracer:   otel.Tracer(serviceTracer),
		launcher: params.Launcher,
		resolver: params.Resolver,
		metrics:  params.Metrics,

		governor:   browser.NewGovernor(params.Logger),
		summarizer: NewSummarizer(params.Logger, cfg.HTMLLimit),
		planner:    NewPlanner(params.Logger, params.AI, params.Metrics),
		executor:   NewExecutor(params.Logger, evidence, cfg.ClickWait),
		fallback:   NewFallback(params.Logger, cfg.DelayedActionWait),
		verifier:   NewVerifier(params.Logger, evidence, cfg.SettleDelay),

		navigationTimeout:  params.Config.BrowserConfig.NavigationTimeout,
		networkIdleTimeout: params.Config.BrowserConfig.NetworkIdleTimeout,
		summaryMode:        cfg.SummaryMode,
		alwaysFallback:     cfg.AlwaysFallback,
	}
}

// attempt tracks one Perform call. close is idempotent.
type attempt struct {
	logger  *zap.Logger
	state   State
	session ports.Session
	closed  bool
}

func (a *attempt) enter(next State) {
	a.logger.Debug("State transition", zap.String("from", string(a.state)), zap.String("to", string(next)))
	a.state = next
}

func (a *attempt) close() {
	if a.closed {
		return
	}

	a.closed = true

	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}

	a.enter(StateClosed)
}

// Perform runs one unsubscribe attempt end to end. It never panics and never
// returns an error: every failure is folded into the outcome.
func (s *Service) Perform(ctx context.Context, req entity.UnsubscribeRequest) (outcome entity.AttemptOutcome) {
	const op = "Perform"

	attemptID := uuid.New()
	started := time.Now()

	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.AttemptID, attemptID.String()),
		zap.String(logg.URL, req.TargetURL),
	)

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("target_url", req.TargetURL))

	run := &attempt{logger: logger, state: StateInit}

	var err error

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(op, apperr.CodeInternal, fmt.Errorf("panic: %v", r), map[string]any{
				apperr.MetaReason: "panic",
				apperr.MetaStage:  string(run.state),
			})
			logger.Error("Unhandled exception during unsubscribe", zap.Error(err), zap.Stack("stack"))

			outcome = entity.AttemptOutcome{Reason: entity.ReasonUnhandled}
		}

		run.close()

		outcome.ID = attemptID
		s.metrics.RecordAttempt(ctx, outcome.Strategy.String(), outcome.Success, time.Since(started))

		step.SetAttributes(
			attribute.Bool("success", outcome.Success),
			attribute.String("strategy", outcome.Strategy.String()),
		)
		step.End(err)

		logger.Info("Unsubscribe attempt finished",
			zap.Bool("success", outcome.Success),
			zap.String(logg.Strategy, outcome.Strategy.String()),
			zap.String("reason", outcome.Reason),
			zap.Duration("elapsed", time.Since(started)),
		)
	}()

	if err = validateTarget(req.TargetURL); err != nil {
		err = apperr.InvalidReqError(op, "target_url", err)
		logger.Warn("Rejected unsubscribe target", zap.Error(err))

		return entity.AttemptOutcome{Reason: entity.ReasonInvalidURL}
	}

	session, err := s.launcher.NewSession(ctx)
	if err != nil {
		logger.Error("Failed to open browser session", zap.Error(err))

		return entity.AttemptOutcome{Reason: entity.ReasonUnhandled}
	}

	run.session = session
	page := session.Page()

	if err = s.navigate(page, req.TargetURL, logger); err != nil {
		logger.Warn("Navigation failed", zap.Error(err))

		return entity.AttemptOutcome{Reason: entity.ReasonNavigationFailed}
	}

	run.enter(StateNavigated)

	if _, err = s.resolver.Resolve(ctx, page); err != nil {
		logger.Warn("Challenge unresolved", zap.Error(err))

		return entity.AttemptOutcome{Reason: entity.ReasonCaptchaFailed}
	}

	run.enter(StateChallengeChecked)

	frame := s.workingFrame(page, logger)

	strategy, attempted := s.assist(ctx, page, frame, req.UserEmail, logger)
	if attempted {
		run.enter(StateAIAttempted)
	}

	if strategy == entity.StrategyNone || s.alwaysFallback {
		winner := s.fallback.Run(ctx, page, frame)
		if strategy == entity.StrategyNone {
			strategy = winner
		}

		run.enter(StateFallbackAttempted)
	}

	outcome = s.verifier.Verify(ctx, page, strategy)
	run.enter(StateVerified)

	return outcome
}

func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errInvalidTarget
	}

	return nil
}

func (s *Service) navigate(page ports.Page, target string, logger *zap.Logger) error {
	const op = "navigate"

	s.governor.Install(page)

	if err := page.Goto(target, s.navigationTimeout); err != nil {
		return apperr.Wrap(op, apperr.CodeNavigationFailed, err, map[string]any{
			apperr.MetaURL:   target,
			apperr.MetaStage: apperr.StageNavigation,
		})
	}

	if err := page.WaitForNetworkIdle(s.networkIdleTimeout); err != nil {
		logger.Debug("Network did not go idle after navigation", zap.Error(err))
	}

	return nil
}

// workingFrame is the embedded data iframe when the page has one, else the
// page itself. Planning, execution and fallback all run against it.
func (s *Service) workingFrame(page ports.Page, logger *zap.Logger) ports.Frame {
	nested, err := page.NestedDataFrame()
	if err != nil {
		logger.Debug("Nested frame lookup failed", zap.Error(err))

		return page
	}

	if nested == nil {
		return page
	}

	logger.Info("Form is rendered inside an embedded data iframe", zap.String(logg.Frame, "data"))

	return nested
}

// assist runs the AI-assisted path. attempted is true when a plan was
// executed; the strategy is set only when that execution acted on the page.
func (s *Service) assist(ctx context.Context, page ports.Page, frame ports.Frame, userEmail string, logger *zap.Logger) (entity.Strategy, bool) {
	summary, err := s.summarize(ctx, page, frame)
	if err != nil {
		logger.Warn("Page summary unavailable", zap.Error(err))

		return entity.StrategyNone, false
	}

	plan := s.planner.Plan(ctx, summary, userEmail)
	if len(plan) == 0 {
		return entity.StrategyNone, false
	}

	report := s.executor.Execute(ctx, page, frame, plan, userEmail)

	logger.Info("AI plan executed",
		zap.Int("planned", report.Planned),
		zap.Int("performed", report.Performed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("filled", report.Filled),
		zap.Bool("submitted", report.Submitted),
	)

	if !report.Acted() {
		return entity.StrategyNone, true
	}

	return entity.StrategyAIComplexForm, true
}

func (s *Service) summarize(ctx context.Context, page ports.Page, frame ports.Frame) (string, error) {
	if s.summaryMode == config.SummaryRawHTML {
		return s.summarizer.RawHTML(ctx, page)
	}

	return s.summarizer.Structured(ctx, frame)
}
