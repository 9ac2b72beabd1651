package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	emailActionServiceName = "EmailActionService"
	emailActionTracer      = "usecase.email_actions"
)

// EmailActionService unsubscribes a batch of emails, one independent attempt
// per email, and records every result.
type EmailActionService struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	unsubscriber ports.Unsubscriber
	history      ports.HistoryStore
	concurrency  int
}

type EmailActionParams struct {
	fx.In

	Config       *config.Config
	Logger       *zap.Logger
	Unsubscriber ports.Unsubscriber
	History      ports.HistoryStore
}

func NewEmailActionService(params EmailActionParams) *EmailActionService {
	concurrency := params.Config.UnsubscribeConfig.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &EmailActionService{
		logger:       params.Logger.With(zap.String(logg.Layer, emailActionServiceName)),
		tracer:       otel.Tracer(emailActionTracer),
		unsubscriber: params.Unsubscriber,
		history:      params.History,
		concurrency:  concurrency,
	}
}

// Unsubscribe returns one result per target, in input order. The error is
// only set for an invalid request; per-email failures live in the results.
func (s *EmailActionService) Unsubscribe(ctx context.Context, userEmail string, targets []entity.EmailTarget) (results []entity.EmailActionResult, err error) {
	const op = "Unsubscribe"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.Int("targets", len(targets)))
	defer func() {
		step.End(err)
	}()

	if strings.TrimSpace(userEmail) == "" {
		return nil, apperr.InvalidReqError(op, "user_email", errors.New("user email cannot be empty"))
	}

	results = make([]entity.EmailActionResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = s.unsubscribeOne(gctx, userEmail, target)

			return nil
		})
	}

	_ = g.Wait()

	succeeded := 0

	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	step.SetAttributes(attribute.Int("succeeded", succeeded))
	logger.Info("Batch finished", zap.Int("targets", len(targets)), zap.Int("succeeded", succeeded))

	return results, nil
}

func (s *EmailActionService) unsubscribeOne(ctx context.Context, userEmail string, target entity.EmailTarget) entity.EmailActionResult {
	logger := s.logger.With(zap.String(logg.EmailID, target.ID), zap.String(logg.URL, target.UnsubscribeURL))

	rec := &entity.HistoryRecord{
		EmailID:   target.ID,
		TargetURL: target.UnsubscribeURL,
		UserEmail: userEmail,
	}

	switch {
	case strings.TrimSpace(target.UnsubscribeURL) == "":
		rec.Reason = entity.ReasonNoLink
	case ctx.Err() != nil:
		rec.Reason = entity.ReasonCancelled
	default:
		outcome := s.unsubscriber.Perform(ctx, entity.UnsubscribeRequest{
			TargetURL: target.UnsubscribeURL,
			UserEmail: userEmail,
		})

		rec.Success = outcome.Success
		rec.Strategy = outcome.Strategy.String()
		rec.Reason = outcome.Reason
		rec.Evidence = outcome.EvidencePath
	}

	rec.CreatedAt = time.Now()

	// History is best effort; the caller still gets the result.
	if err := s.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("Failed to record attempt", zap.Error(err))
	}

	logger.Info("Email processed", zap.Bool("success", rec.Success), zap.String("reason", rec.Reason))

	return entity.EmailActionResult{
		ID:      target.ID,
		Success: rec.Success,
		Reason:  rec.Reason,
	}
}
