package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeUnsubscriber struct {
	mu       sync.Mutex
	outcomes map[string]entity.AttemptOutcome
	requests []entity.UnsubscribeRequest

	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeUnsubscriber) Perform(_ context.Context, req entity.UnsubscribeRequest) entity.AttemptOutcome {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	return f.outcomes[req.TargetURL]
}

type fakeHistory struct {
	mu      sync.Mutex
	records []entity.HistoryRecord
	err     error
}

func (h *fakeHistory) Record(_ context.Context, rec *entity.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return h.err
	}

	h.records = append(h.records, *rec)

	return nil
}

func (h *fakeHistory) Recent(_ context.Context, _ int) ([]entity.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]entity.HistoryRecord(nil), h.records...), nil
}

func newTestEmailActions(t *testing.T, unsub *fakeUnsubscriber, history *fakeHistory, concurrency int) *EmailActionService {
	t.Helper()

	return NewEmailActionService(EmailActionParams{
		Config: &config.Config{
			UnsubscribeConfig: &config.UnsubscribeConfig{Concurrency: concurrency},
		},
		Logger:       zaptest.NewLogger(t),
		Unsubscriber: unsub,
		History:      history,
	})
}

func TestEmailActionService_Unsubscribe(t *testing.T) {
	unsub := &fakeUnsubscriber{outcomes: map[string]entity.AttemptOutcome{
		"https://a.example.com/u": {
			Success:      true,
			Strategy:     entity.StrategyButtonOrLink,
			Reason:       `Unsubscribed via button/link (matched "unsubscribed")`,
			EvidencePath: "screenshots/a.png",
		},
		"https://b.example.com/u": {Reason: entity.ReasonNavigationFailed},
	}}
	history := &fakeHistory{}

	results, err := newTestEmailActions(t, unsub, history, 2).Unsubscribe(context.Background(), "me@example.com", []entity.EmailTarget{
		{ID: "m1", UnsubscribeURL: "https://a.example.com/u"},
		{ID: "m2", UnsubscribeURL: ""},
		{ID: "m3", UnsubscribeURL: "https://b.example.com/u"},
	})

	require.NoError(t, err)
	assert.Equal(t, []entity.EmailActionResult{
		{ID: "m1", Success: true, Reason: `Unsubscribed via button/link (matched "unsubscribed")`},
		{ID: "m2", Success: false, Reason: entity.ReasonNoLink},
		{ID: "m3", Success: false, Reason: entity.ReasonNavigationFailed},
	}, results)

	assert.Len(t, unsub.requests, 2)

	for _, req := range unsub.requests {
		assert.Equal(t, "me@example.com", req.UserEmail)
	}

	recorded, err := history.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recorded, 3)

	byEmail := make(map[string]entity.HistoryRecord, len(recorded))
	for _, rec := range recorded {
		byEmail[rec.EmailID] = rec
	}

	assert.Equal(t, string(entity.StrategyButtonOrLink), byEmail["m1"].Strategy)
	assert.Equal(t, "screenshots/a.png", byEmail["m1"].Evidence)
	assert.Equal(t, entity.ReasonNoLink, byEmail["m2"].Reason)
	assert.False(t, byEmail["m3"].CreatedAt.IsZero())
}

func TestEmailActionService_ConcurrencyLimit(t *testing.T) {
	unsub := &fakeUnsubscriber{delay: 20 * time.Millisecond}

	targets := make([]entity.EmailTarget, 6)
	for i := range targets {
		targets[i] = entity.EmailTarget{ID: string(rune('a' + i)), UnsubscribeURL: "https://example.com/u"}
	}

	results, err := newTestEmailActions(t, unsub, &fakeHistory{}, 2).Unsubscribe(context.Background(), "me@example.com", targets)

	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.LessOrEqual(t, unsub.peak.Load(), int32(2))
	assert.Len(t, unsub.requests, 6)
}

func TestEmailActionService_HistoryFailureDoesNotFailResult(t *testing.T) {
	unsub := &fakeUnsubscriber{outcomes: map[string]entity.AttemptOutcome{
		"https://a.example.com/u": {Success: true, Strategy: entity.StrategyDelayedAction, Reason: "ok"},
	}}

	results, err := newTestEmailActions(t, unsub, &fakeHistory{err: errors.New("disk full")}, 1).
		Unsubscribe(context.Background(), "me@example.com", []entity.EmailTarget{{ID: "m1", UnsubscribeURL: "https://a.example.com/u"}})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestEmailActionService_Cancelled(t *testing.T) {
	unsub := &fakeUnsubscriber{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newTestEmailActions(t, unsub, &fakeHistory{}, 1).
		Unsubscribe(ctx, "me@example.com", []entity.EmailTarget{{ID: "m1", UnsubscribeURL: "https://a.example.com/u"}})

	require.NoError(t, err)
	assert.Equal(t, entity.ReasonCancelled, results[0].Reason)
	assert.Empty(t, unsub.requests)
}

func TestEmailActionService_RequiresUserEmail(t *testing.T) {
	_, err := newTestEmailActions(t, &fakeUnsubscriber{}, &fakeHistory{}, 1).
		Unsubscribe(context.Background(), " ", []entity.EmailTarget{{ID: "m1", UnsubscribeURL: "https://a.example.com/u"}})

	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidArgument))
}
