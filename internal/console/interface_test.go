package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEmailActions struct {
	emails  []string
	targets []entity.EmailTarget
}

func (f *fakeEmailActions) Unsubscribe(_ context.Context, userEmail string, targets []entity.EmailTarget) ([]entity.EmailActionResult, error) {
	f.emails = append(f.emails, userEmail)
	f.targets = append(f.targets, targets...)

	return []entity.EmailActionResult{{Success: true, Reason: `Unsubscribed via button/link (matched "removed")`}}, nil
}

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]entity.HistoryRecord, error) {
	f.limit = limit

	return []entity.HistoryRecord{{
		TargetURL: "https://a.example.com/u",
		Reason:    entity.ReasonNavigationFailed,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}, nil
}

func newTestInterface(t *testing.T, input, email string) (*Interface, *bytes.Buffer, *fakeEmailActions, *fakeHistory) {
	t.Helper()

	actions := &fakeEmailActions{}
	history := &fakeHistory{}
	out := &bytes.Buffer{}

	i := newInterface(Params{
		Config: &config.Config{AppConfig: &config.AppConfig{UserEmail: email}},
		Logger: zaptest.NewLogger(t),
		Usecase: &usecase.Service{
			EmailActions: actions,
			History:      history,
		},
	}, strings.NewReader(input), out)

	return i, out, actions, history
}

func TestInterface_UnsubscribeLine(t *testing.T) {
	i, out, actions, _ := newTestInterface(t, "https://news.example.com/u?id=1\nexit\nhttps://never.example.com\n", "me@example.com")

	require.NoError(t, i.Start())

	require.Len(t, actions.targets, 1)
	assert.Equal(t, "https://news.example.com/u?id=1", actions.targets[0].UnsubscribeURL)
	assert.Equal(t, []string{"me@example.com"}, actions.emails)
	assert.Contains(t, out.String(), `OK: Unsubscribed via button/link (matched "removed")`)
}

func TestInterface_EmailCommand(t *testing.T) {
	i, out, actions, _ := newTestInterface(t, "https://a.example.com\nemail other@example.com\nhttps://a.example.com\n", "")

	require.NoError(t, i.Start())

	assert.Contains(t, out.String(), "no email set")
	assert.Equal(t, []string{"other@example.com"}, actions.emails)
}

func TestInterface_History(t *testing.T) {
	i, out, _, history := newTestInterface(t, "history 3\nhistory nope\n", "me@example.com")

	require.NoError(t, i.Start())

	assert.Equal(t, 3, history.limit)
	assert.Contains(t, out.String(), "2024-05-01 10:00:00  FAILED  https://a.example.com/u  Navigation failed")
	assert.Contains(t, out.String(), `history limit "nope"`)
}

func TestInterface_StopEndsLoop(t *testing.T) {
	i, _, actions, _ := newTestInterface(t, "https://a.example.com\n", "me@example.com")

	require.NoError(t, i.Stop())
	require.NoError(t, i.Stop())
	require.NoError(t, i.Start())

	assert.Empty(t, actions.targets)
}
