package adapters

import (
	"context"
	"unsubscribe-agent/internal/entity"
)

type UnsubscribeService interface {
	Perform(ctx context.Context, req entity.UnsubscribeRequest) entity.AttemptOutcome
}

type EmailActionService interface {
	Unsubscribe(ctx context.Context, userEmail string, targets []entity.EmailTarget) ([]entity.EmailActionResult, error)
}

type HistoryService interface {
	Recent(ctx context.Context, limit int) ([]entity.HistoryRecord, error)
}
