package usecase

import (
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Unsubscribe  adapters.UnsubscribeService
	EmailActions adapters.EmailActionService
	History      adapters.HistoryService
}

type Params struct {
	fx.In

	Logger       *zap.Logger
	Config       *config.Config
	Unsubscriber ports.Unsubscriber
	History      ports.HistoryStore
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Unsubscribe:  factory.CreateUnsubscribeService(),
		EmailActions: factory.CreateEmailActionService(),
		History:      factory.CreateHistoryService(),
	}
}
