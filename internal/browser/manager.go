package browser

import (
	"context"
	"errors"
	"sync"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	userAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var errDriverNotStarted = errors.New("playwright driver is not started")

// Manager owns the playwright driver process. Every NewSession call launches
// its own chromium instance so no browser context is shared between attempts.
type Manager struct {
	config     *config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
	mu         sync.Mutex
	playwright *playwright.Playwright
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
	}
}

func (m *Manager) Start(ctx context.Context) (err error) {
	const op = "Start"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playwright != nil {
		return nil
	}

	if m.config.BrowserConfig.Install {
		step.AddEvent("installing playwright")

		if err = playwright.Install(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_install_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.playwright = pw
	logger.Info("Playwright driver started")

	return nil
}

func (m *Manager) Stop(ctx context.Context) (err error) {
	const op = "Stop"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playwright == nil {
		return nil
	}

	if err = m.playwright.Stop(); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_stop_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.playwright = nil
	logger.Info("Playwright driver stopped")

	return nil
}

func (m *Manager) NewSession(ctx context.Context) (_ ports.Session, err error) {
	const op = "NewSession"
	sessionID := uuid.NewString()
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.AttemptID, sessionID))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("session_id", sessionID))
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	pw := m.playwright
	m.mu.Unlock()

	if pw == nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, errDriverNotStarted, map[string]any{
			apperr.MetaReason: "driver_not_started",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 720,
		},
		UserAgent:         playwright.String(userAgent),
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		_ = browser.Close()

		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	page, err := browserContext.NewPage()
	if err != nil {
		_ = browserContext.Close()
		_ = browser.Close()

		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	logger.Debug("Browser session opened")

	return &session{
		id:             sessionID,
		logger:         logger,
		browser:        browser,
		browserContext: browserContext,
		page:           newPage(page, m.config.BrowserConfig.ActionTimeout),
	}, nil
}

type session struct {
	id             string
	logger         *zap.Logger
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           *pageAdapter
	closeOnce      sync.Once
	closeErr       error
}

func (s *session) Page() ports.Page {
	return s.page
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.browserContext.Close(); err != nil {
			s.logger.Warn("Failed to close context", zap.Error(err))
		}

		if err := s.browser.Close(); err != nil {
			s.closeErr = err
		}

		s.logger.Debug("Browser session closed")
	})

	return s.closeErr
}
