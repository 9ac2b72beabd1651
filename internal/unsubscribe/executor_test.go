package unsubscribe

import (
	"context"
	"errors"
	"testing"
	"time"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/browser/browsertest"
	"unsubscribe-agent/internal/entity"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	logger := zaptest.NewLogger(t)

	return NewExecutor(logger, NewEvidence(t.TempDir(), logger), 50*time.Millisecond)
}

func TestExecutor_SkipsMissingSelectorAndContinues(t *testing.T) {
	page := browsertest.NewPage()
	page.Add("#email", &browsertest.Element{Tag: "input"})
	page.Add("#agree", &browsertest.Element{Tag: "input"})
	page.Add("#go", &browsertest.Element{Tag: "button"})

	plan := []entity.ActionSpec{
		entity.Fill("#missing", "x"),
		entity.Fill("#email", "me@example.com"),
		entity.Check("#agree"),
		entity.Click("#go"),
	}

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame, plan, "me@example.com")

	assert.Equal(t, 4, report.Planned)
	assert.Equal(t, 3, report.Performed)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.True(t, report.Acted())

	events := page.Log.Events()
	assert.Equal(t, []string{"fill:#email=me@example.com", "check:#agree", "click:#go", "screenshot"}, events)
	assert.Len(t, page.Screenshots(), 1)
}

func TestExecutor_FailedActionDoesNotAbort(t *testing.T) {
	page := browsertest.NewPage()
	page.Add("#broken", &browsertest.Element{Tag: "input", FillErr: errors.New("detached")})
	page.Add("#ok", &browsertest.Element{Tag: "input"})

	plan := []entity.ActionSpec{
		entity.Fill("#broken", "x"),
		entity.Fill("#ok", "y"),
	}

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame, plan, "me@example.com")

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Performed)
	assert.Equal(t, []string{"fill:#ok=y"}, page.Log.Events())
}

func TestExecutor_FillBranches(t *testing.T) {
	t.Run("select picks first non-empty option", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Add("#reason", &browsertest.Element{Tag: "SELECT", Options: []string{"", "too_many", "other"}})

		newTestExecutor(t).Execute(context.Background(), page, page.Frame,
			[]entity.ActionSpec{entity.Fill("#reason", "whatever the model said")}, "me@example.com")

		assert.Equal(t, []string{"select:#reason=too_many"}, page.Log.Events())
	})

	t.Run("textarea filled directly", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Add("#why", &browsertest.Element{Tag: "textarea"})

		newTestExecutor(t).Execute(context.Background(), page, page.Frame,
			[]entity.ActionSpec{entity.Fill("#why", "Too many emails")}, "me@example.com")

		assert.Equal(t, []string{"fill:#why=Too many emails"}, page.Log.Events())
	})

	t.Run("custom dropdown opened then option clicked", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Add("#dropdown", &browsertest.Element{Tag: "div"})
		page.Add(CustomOptionSelector, &browsertest.Element{Name: "first-option", Tag: "li"})

		newTestExecutor(t).Execute(context.Background(), page, page.Frame,
			[]entity.ActionSpec{entity.Fill("#dropdown", "Weekly")}, "me@example.com")

		assert.Equal(t, []string{"click:#dropdown", "click:first-option"}, page.Log.Events())
	})
}

func TestExecutor_CheckSkipsCheckedBox(t *testing.T) {
	page := browsertest.NewPage()
	page.Add("#done", &browsertest.Element{Tag: "input", Checked: true})

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame,
		[]entity.ActionSpec{entity.Check("#done")}, "me@example.com")

	assert.Equal(t, 1, report.Performed)
	assert.Empty(t, page.Log.Events())
}

func TestExecutor_RequiredFieldNet(t *testing.T) {
	page := browsertest.NewPage()
	page.SetEval(browser.RequiredFieldsScript, []interface{}{
		map[string]interface{}{"selector": "#r-email", "tag": "input", "type": "email"},
		map[string]interface{}{"selector": "#r-box", "tag": "input", "type": "checkbox"},
		map[string]interface{}{"selector": "#r-select", "tag": "select", "type": "select-one"},
		map[string]interface{}{"selector": "#r-text", "tag": "textarea", "type": "textarea"},
		map[string]interface{}{"selector": "#r-name", "tag": "input", "type": "text"},
		map[string]interface{}{"selector": "#gone", "tag": "input", "type": "text"},
	})
	page.Add("#r-email", &browsertest.Element{Tag: "input"})
	page.Add("#r-box", &browsertest.Element{Tag: "input"})
	page.Add("#r-select", &browsertest.Element{Tag: "select", Options: []string{"", "a", "b"}})
	page.Add("#r-text", &browsertest.Element{Tag: "textarea"})
	page.Add("#r-name", &browsertest.Element{Tag: "input"})

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame, nil, "me@example.com")

	assert.Equal(t, 5, report.Filled)
	assert.True(t, report.Acted())
	assert.Equal(t, []string{
		"fill:#r-email=me@example.com",
		"check:#r-box",
		"select:#r-select=a",
		"fill:#r-text=" + PlaceholderReason,
		"fill:#r-name=" + PlaceholderText,
	}, page.Log.Events())
}

func TestExecutor_SubmitHeuristic(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(SubmitCandidatesSelector, &browsertest.Element{Name: "back", Tag: "button", TextVal: "Back"})
	page.Add(SubmitCandidatesSelector, &browsertest.Element{
		Name:  "update",
		Tag:   "input",
		Attrs: map[string]string{"value": "Update preferences"},
	})
	page.Add(SubmitCandidatesSelector, &browsertest.Element{Name: "later", Tag: "button", TextVal: "Unsubscribe"})

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame, nil, "me@example.com")

	assert.True(t, report.Submitted)
	assert.Equal(t, []string{"click:update", "screenshot"}, page.Log.Events())
}

func TestExecutor_NothingToDo(t *testing.T) {
	page := browsertest.NewPage()

	report := newTestExecutor(t).Execute(context.Background(), page, page.Frame, nil, "me@example.com")

	assert.False(t, report.Acted())
	assert.Empty(t, page.Log.Events())
}
