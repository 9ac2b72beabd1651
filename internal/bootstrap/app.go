package bootstrap

import (
	"context"
	"time"
	"unsubscribe-agent/internal/ai"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/captcha"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/console"
	"unsubscribe-agent/internal/history"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/internal/unsubscribe"
	"unsubscribe-agent/internal/usecase"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module wires the unsubscribe engine and everything it depends on.
var Module = fx.Options(
	fx.Provide(
		config.GetConfig,
		newLogger,
		newResource,
		newTraceProvider,
		newMeterProvider,
		newRecorder,

		browser.NewManager,
		func(m *browser.Manager) ports.BrowserLauncher { return m },

		fx.Annotate(captcha.NewClient, fx.As(new(ports.CaptchaSolver))),
		fx.Annotate(captcha.NewResolver, fx.As(new(ports.ChallengeResolver))),
		ai.NewClient,

		fx.Annotate(unsubscribe.NewService, fx.As(new(ports.Unsubscriber))),
		newHistoryStore,

		usecase.NewUsecase,
	),

	fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
	}),

	fx.Invoke(
		func(*sdktrace.TracerProvider, *sdkmetric.MeterProvider) {},
		serveMetrics,
		runBrowser,
	),
)

// NewApp builds the application with extra options, for example an
// fx.Populate of the usecase for one-shot commands.
func NewApp(opts ...fx.Option) *fx.App {
	return fx.New(
		Module,
		fx.Options(opts...),
		fx.StartTimeout(2*time.Minute),
	)
}

// NewConsoleApp runs the interactive console on top of Module.
func NewConsoleApp() *fx.App {
	return NewApp(
		fx.Provide(console.NewInterface),
		fx.Invoke(runConsole),
	)
}

func newHistoryStore(lc fx.Lifecycle, cfg *config.Config) (ports.HistoryStore, *history.Store, error) {
	store, err := history.NewStore(cfg.HistoryConfig.DBPath)
	if err != nil {
		return nil, nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return store.Close()
		},
	})

	return store, store, nil
}

func runBrowser(lc fx.Lifecycle, manager *browser.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting browser driver...")

			return manager.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := manager.Stop(ctx); err != nil {
				logger.Error("Failed to stop browser driver", zap.Error(err))
			}

			return nil
		},
	})
}
