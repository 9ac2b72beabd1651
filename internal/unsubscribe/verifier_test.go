package unsubscribe

import (
	"context"
	"testing"
	"unsubscribe-agent/internal/browser/browsertest"
	"unsubscribe-agent/internal/entity"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()

	logger := zaptest.NewLogger(t)

	return NewVerifier(logger, NewEvidence(t.TempDir(), logger), 0)
}

func TestMatchSuccess(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "You have been Unsubscribed.", want: "Unsubscribed"},
		{text: "You opted out of marketing", want: "opted out"},
		{text: "Your address was removed", want: "removed"},
		{text: "You will no longer receive these", want: "no longer"},
		{text: "Manage your preferences", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := MatchSuccess(tt.text)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != "", ok)
		})
	}
}

func TestVerifier_ConfirmationOnPage(t *testing.T) {
	page := browsertest.NewPage()
	page.SetText("Done! You have successfully unsubscribed.")

	outcome := newTestVerifier(t).Verify(context.Background(), page, entity.StrategyButtonOrLink)

	assert.True(t, outcome.Success)
	assert.Equal(t, entity.StrategyButtonOrLink, outcome.Strategy)
	assert.Contains(t, outcome.Reason, "button/link")
	assert.Contains(t, outcome.Reason, `matched "success"`)
	assert.NotEmpty(t, outcome.EvidencePath)
	assert.Len(t, page.Screenshots(), 1)
}

func TestVerifier_ConfirmationInEmbeddedFrame(t *testing.T) {
	page := browsertest.NewPage()
	page.SetText("Loading preferences")
	page.DataHTML = `<html><body><script>var unsubscribed = 1;</script><p>You have been removed from this list.</p></body></html>`

	outcome := newTestVerifier(t).Verify(context.Background(), page, entity.StrategyCheckboxRadioSubmit)

	assert.True(t, outcome.Success)
	assert.Equal(t, entity.StrategyEmbeddedIframeSuccess, outcome.Strategy)
	assert.Contains(t, outcome.Reason, `matched "removed"`)
}

func TestVerifier_EmbeddedFrameWithoutAction(t *testing.T) {
	page := browsertest.NewPage()
	page.DataHTML = `<html><body>You will no longer receive our emails.</body></html>`

	outcome := newTestVerifier(t).Verify(context.Background(), page, entity.StrategyNone)

	assert.True(t, outcome.Success)
	assert.Equal(t, entity.StrategyEmbeddedIframeSuccess, outcome.Strategy)
	assert.Empty(t, page.Screenshots())
}

func TestVerifier_ClickWithoutConfirmation(t *testing.T) {
	page := browsertest.NewPage()
	page.SetText("Manage your preferences")

	outcome := newTestVerifier(t).Verify(context.Background(), page, entity.StrategyDelayedAction)

	assert.False(t, outcome.Success)
	assert.Equal(t, entity.StrategyDelayedAction, outcome.Strategy)
	assert.Equal(t, "No confirmation detected after delayed", outcome.Reason)
	assert.Len(t, page.Screenshots(), 1)
}

func TestVerifier_NothingActed(t *testing.T) {
	page := browsertest.NewPage()
	page.SetText("You have been unsubscribed")
	page.SetHTML("<html><body>You have been unsubscribed</body></html>")

	outcome := newTestVerifier(t).Verify(context.Background(), page, entity.StrategyNone)

	assert.False(t, outcome.Success)
	assert.Equal(t, entity.ReasonNoStrategy, outcome.Reason)
	assert.NotEmpty(t, outcome.EvidencePath)
	assert.Empty(t, page.Screenshots())
}
