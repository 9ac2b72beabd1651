package unsubscribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAI struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (f *fakeAI) GenerateContent(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)

	return f.text, f.err
}

func (f *fakeAI) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.prompts...)
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   []entity.ActionSpec
		wantOK bool
	}{
		{
			name: "all three shapes",
			text: `[
				{"selector": "input#email", "value": "me@example.com"},
				{"selector": "input.opt-out", "action": "check"},
				{"selector": "button#go", "action": "click"}
			]`,
			want: []entity.ActionSpec{
				entity.Fill("input#email", "me@example.com"),
				entity.Check("input.opt-out"),
				entity.Click("button#go"),
			},
			wantOK: true,
		},
		{
			name:   "surrounding prose and code fences",
			text:   "Sure! Here is the plan:\n```json\n[{\"selector\": \"#a\", \"action\": \"click\"}]\n```\nGood luck.",
			want:   []entity.ActionSpec{entity.Click("#a")},
			wantOK: true,
		},
		{
			name: "invalid entries dropped",
			text: `[
				{"value": "no selector"},
				{"selector": "   ", "action": "click"},
				{"selector": "#unknown", "action": "hover"},
				"just a string",
				{"selector": "#ok", "action": "CHECK"}
			]`,
			want:   []entity.ActionSpec{entity.Check("#ok")},
			wantOK: true,
		},
		{
			name:   "empty value still fills",
			text:   `[{"selector": "select#reason", "value": ""}]`,
			want:   []entity.ActionSpec{entity.Fill("select#reason", "")},
			wantOK: true,
		},
		{
			name:   "non-string value kept verbatim",
			text:   `[{"selector": "#count", "value": 3}]`,
			want:   []entity.ActionSpec{entity.Fill("#count", "3")},
			wantOK: true,
		},
		{
			name:   "empty array",
			text:   `[]`,
			want:   []entity.ActionSpec{},
			wantOK: true,
		},
		{
			name:   "no brackets",
			text:   "I cannot help with that.",
			wantOK: false,
		},
		{
			name:   "malformed json",
			text:   `[{"selector": "#a", }]`,
			wantOK: false,
		},
		{
			name:   "closing before opening",
			text:   `] nothing [`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePlan(tt.text)

			require.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	summary := `input[id="email"][name=""][type="email"][class=""][label="Email"]`

	first := BuildPrompt(summary, "me@example.com")
	second := BuildPrompt(summary, "me@example.com")

	assert.Equal(t, first, second)
	assert.Contains(t, first, summary)
	assert.Contains(t, first, "me@example.com")
	assert.Contains(t, first, "JSON array")
}

func TestPlanner_Plan(t *testing.T) {
	tests := []struct {
		name      string
		summary   string
		client    *fakeAI
		want      []entity.ActionSpec
		wantCalls int
	}{
		{
			name:      "valid plan",
			summary:   `button[id="go"]`,
			client:    &fakeAI{text: `[{"selector": "#go", "action": "click"}]`},
			want:      []entity.ActionSpec{entity.Click("#go")},
			wantCalls: 1,
		},
		{
			name:      "empty summary skips the service",
			summary:   "  ",
			client:    &fakeAI{text: `[{"selector": "#go", "action": "click"}]`},
			wantCalls: 0,
		},
		{
			name:      "service error",
			summary:   `button[id="go"]`,
			client:    &fakeAI{err: errors.New("quota exceeded")},
			wantCalls: 1,
		},
		{
			name:      "unparseable response",
			summary:   `button[id="go"]`,
			client:    &fakeAI{text: "no idea"},
			wantCalls: 1,
		},
		{
			name:      "only invalid entries",
			summary:   `button[id="go"]`,
			client:    &fakeAI{text: `[{"action": "click"}]`},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewPlanner(zaptest.NewLogger(t), tt.client, metrics.NewNop())

			got := planner.Plan(context.Background(), tt.summary, "me@example.com")

			assert.Equal(t, tt.want, got)
			assert.Len(t, tt.client.Prompts(), tt.wantCalls)
		})
	}
}
