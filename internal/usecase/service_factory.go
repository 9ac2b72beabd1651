package usecase

import (
	"unsubscribe-agent/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateUnsubscribeService() adapters.UnsubscribeService {
	return f.deps.Unsubscriber
}

func (f *serviceFactory) CreateEmailActionService() adapters.EmailActionService {
	return NewEmailActionService(EmailActionParams{
		Config:       f.deps.Config,
		Logger:       f.deps.Logger,
		Unsubscriber: f.deps.Unsubscriber,
		History:      f.deps.History,
	})
}

func (f *serviceFactory) CreateHistoryService() adapters.HistoryService {
	return f.deps.History
}
