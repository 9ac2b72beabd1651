package unsubscribe

import (
	"context"
	"errors"
	"testing"
	"unsubscribe-agent/internal/browser/browsertest"
	"unsubscribe-agent/internal/entity"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func runFallback(t *testing.T, page *browsertest.Page) entity.Strategy {
	t.Helper()

	return NewFallback(zaptest.NewLogger(t), 0).Run(context.Background(), page, page.Frame)
}

func TestFallback_ChecksEveryBoxBeforeSubmit(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(CheckboxSelector, &browsertest.Element{Name: "box1", Tag: "input"})
	page.Add(CheckboxSelector, &browsertest.Element{Name: "box2", Tag: "input"})
	page.Add(SubmitSelector, &browsertest.Element{Name: "submit", Tag: "button"})

	assert.Equal(t, entity.StrategyCheckboxRadioSubmit, runFallback(t, page))

	submit := page.Log.Index("click:submit")
	assert.GreaterOrEqual(t, submit, 0)
	assert.Less(t, page.Log.Index("check:box1"), submit)
	assert.Less(t, page.Log.Index("check:box2"), submit)
	assert.GreaterOrEqual(t, page.Log.Index("check:box2"), 0)
}

func TestFallback_RadioWithoutSubmitContinues(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(RadioSelector, &browsertest.Element{Name: "all", Tag: "input"})
	page.Add(`button:has-text("unsubscribe")`, &browsertest.Element{Name: "unsubscribe", Tag: "button"})

	assert.Equal(t, entity.StrategyButtonOrLink, runFallback(t, page))
	assert.Equal(t, []string{"check:all", "click:unsubscribe"}, page.Log.Events())
}

func TestFallback_CheckedBoxesWithoutSubmitReachLink(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(CheckboxSelector, &browsertest.Element{Name: "topic", Tag: "input"})
	page.Add(`a:has-text("unsubscribe")`, &browsertest.Element{Name: "unsubscribe-link", Tag: "a"})

	assert.Equal(t, entity.StrategyButtonOrLink, runFallback(t, page))
	assert.Equal(t, []string{"check:topic", "click:unsubscribe-link"}, page.Log.Events())
}

func TestFallback_RadioOnlyIsNotAnAction(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(RadioSelector, &browsertest.Element{Name: "all", Tag: "input"})

	assert.Equal(t, entity.StrategyNone, runFallback(t, page))
	assert.Equal(t, []string{"check:all"}, page.Log.Events())
}

func TestFallback_AlreadyCheckedBoxesDoNotCount(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(CheckboxSelector, &browsertest.Element{Name: "box", Tag: "input", Checked: true})

	assert.Equal(t, entity.StrategyNone, runFallback(t, page))
	assert.Empty(t, page.Log.Events())
}

func TestFallback_KeywordOrder(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(`button:has-text("cancel")`, &browsertest.Element{Name: "cancel-button", Tag: "button"})
	page.Add(`a:has-text("unsubscribe")`, &browsertest.Element{Name: "unsubscribe-link", Tag: "a"})

	assert.Equal(t, entity.StrategyButtonOrLink, runFallback(t, page))
	assert.Equal(t, []string{"click:unsubscribe-link"}, page.Log.Events())
}

func TestFallback_SingleUnsubscribeButton(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(`button:has-text("unsubscribe")`, &browsertest.Element{Name: "unsubscribe", Tag: "button"})

	assert.Equal(t, entity.StrategyButtonOrLink, runFallback(t, page))
}

func TestFallback_FailedClickFallsThrough(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(`button:has-text("unsubscribe")`, &browsertest.Element{
		Name:     "covered",
		Tag:      "button",
		ClickErr: errors.New("element is not visible"),
	})
	page.Add(ConfirmationSelector, &browsertest.Element{Name: "yes", Tag: "button"})

	assert.Equal(t, entity.StrategyConfirmationDialog, runFallback(t, page))
	assert.Equal(t, []string{"click:yes"}, page.Log.Events())
}

func TestFallback_DelayedAction(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(EnabledSelector, &browsertest.Element{Name: "continue", Tag: "a"})

	assert.Equal(t, entity.StrategyDelayedAction, runFallback(t, page))
}

func TestFallback_Cancelled(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(EnabledSelector, &browsertest.Element{Name: "continue", Tag: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewFallback(zaptest.NewLogger(t), 0).Run(ctx, page, page.Frame)

	assert.Equal(t, entity.StrategyNone, got)
	assert.Empty(t, page.Log.Events())
}

func TestKeywordSelectors(t *testing.T) {
	assert.Equal(t, []string{
		`button:has-text("unsubscribe")`,
		`a:has-text("unsubscribe")`,
		`button:has-text("opt out")`,
		`a:has-text("opt out")`,
		`button:has-text("cancel")`,
		`a:has-text("cancel")`,
		`button:has-text("stop emails")`,
		`a:has-text("stop emails")`,
	}, KeywordSelectors())
}
