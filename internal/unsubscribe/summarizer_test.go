package unsubscribe

import (
	"context"
	"strings"
	"testing"
	"unsubscribe-agent/internal/browser"
	"unsubscribe-agent/internal/browser/browsertest"
	"unsubscribe-agent/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFormatElement(t *testing.T) {
	line := FormatElement(entity.PageElementSummary{
		Tag:      "input",
		ID:       "email",
		Name:     "addr",
		Type:     "email",
		CSSClass: "field wide",
		Label:    "Your email",
	})

	assert.Equal(t, `input[id="email"][name="addr"][type="email"][class="field wide"][label="Your email"]`, line)
}

func TestSummarizer_Structured(t *testing.T) {
	frame := browsertest.NewFrame(nil)
	frame.SetEval(browser.ElementSummaryScript, []interface{}{
		map[string]interface{}{"tag": "input", "id": "email", "type": "email", "label": "Email"},
		map[string]interface{}{"tag": "button", "type": "submit", "label": "Unsubscribe"},
		"garbage",
	})

	s := NewSummarizer(zaptest.NewLogger(t), 16000)

	summary, err := s.Structured(context.Background(), frame)

	require.NoError(t, err)

	lines := strings.Split(summary, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `input[id="email"][name=""][type="email"][class=""][label="Email"]`, lines[0])
	assert.Equal(t, `button[id=""][name=""][type="submit"][class=""][label="Unsubscribe"]`, lines[1])
}

func TestSummarizer_StructuredEmptyPage(t *testing.T) {
	s := NewSummarizer(zaptest.NewLogger(t), 16000)

	summary, err := s.Structured(context.Background(), browsertest.NewFrame(nil))

	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestSummarizer_RawHTML(t *testing.T) {
	const page = `<html><head><style>body{}</style><script>track()</script></head>` +
		`<body><form><input id="email" type="email"><button>Unsubscribe</button></form></body></html>`

	t.Run("strips scripts and styles", func(t *testing.T) {
		p := browsertest.NewPage()
		p.SetHTML(page)

		summary, err := NewSummarizer(zaptest.NewLogger(t), 16000).RawHTML(context.Background(), p)

		require.NoError(t, err)
		assert.Contains(t, summary, `id="email"`)
		assert.NotContains(t, summary, "track()")
		assert.NotContains(t, summary, "<style>")
	})

	t.Run("prefers embedded data frame", func(t *testing.T) {
		p := browsertest.NewPage()
		p.SetHTML(`<html><body><iframe src="data:text/html;base64,..."></iframe></body></html>`)
		p.DataHTML = page

		summary, err := NewSummarizer(zaptest.NewLogger(t), 16000).RawHTML(context.Background(), p)

		require.NoError(t, err)
		assert.Contains(t, summary, "Unsubscribe")
		assert.NotContains(t, summary, "<iframe")
	})

	t.Run("truncated to limit", func(t *testing.T) {
		p := browsertest.NewPage()
		p.SetHTML(page)

		summary, err := NewSummarizer(zaptest.NewLogger(t), 40).RawHTML(context.Background(), p)

		require.NoError(t, err)
		assert.LessOrEqual(t, len(summary), 40)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
	// "é" is two bytes; a cut inside it backs off to the rune start.
	assert.Equal(t, "a", truncate("aé", 2))
}
