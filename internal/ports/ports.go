package ports

import (
	"context"
	"time"
	"unsubscribe-agent/internal/entity"
)

// Element is a handle to one DOM node inside a page or frame.
type Element interface {
	TagName() (string, error)
	Attribute(name string) (string, bool, error)
	Text() (string, error)
	InputValue() (string, error)
	IsChecked() (bool, error)
	Click() error
	Fill(value string) error
	Check() error
	SelectOption(value string) error
	OptionValues() ([]string, error)
}

// Frame is a browsing context: the top-level page or a nested iframe.
// QuerySelector returns (nil, nil) when nothing matches.
type Frame interface {
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	Evaluate(script string, arg ...any) (any, error)
	Content() (string, error)
	InnerText() (string, error)
}

type Route interface {
	ResourceType() string
	URL() string
	Abort() error
	Continue() error
}

type Page interface {
	Frame

	Goto(url string, timeout time.Duration) error
	URL() string
	Route(pattern string, handler func(Route)) error
	WaitForNetworkIdle(timeout time.Duration) error
	// WaitForURLChange blocks until the page URL differs from from and the
	// new document has loaded.
	WaitForURLChange(from string, timeout time.Duration) error
	// CountText returns how many times pattern matches the body text.
	CountText(pattern string) (int, error)
	// WaitForText blocks until pattern matches the body text more than seen
	// times.
	WaitForText(pattern string, seen int, timeout time.Duration) error
	Screenshot(path string, fullPage bool) error
	// NestedDataFrame returns the iframe whose src is a base64 data URL, or
	// nil when the page has none.
	NestedDataFrame() (Frame, error)
	// DataFrameHTML returns the decoded HTML of that iframe's src.
	DataFrameHTML() (string, bool, error)
}

type Session interface {
	Page() Page
	Close() error
}

type BrowserLauncher interface {
	NewSession(ctx context.Context) (Session, error)
}

type GenerativeClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type CaptchaSolver interface {
	CreateTask(ctx context.Context, task entity.ChallengeTask) (string, error)
	GetTaskResult(ctx context.Context, taskID string) (entity.ChallengeStatus, string, error)
}

type ChallengeResolver interface {
	Resolve(ctx context.Context, page Page) (*entity.ChallengeTask, error)
}

type Unsubscriber interface {
	Perform(ctx context.Context, req entity.UnsubscribeRequest) entity.AttemptOutcome
}

type HistoryStore interface {
	Record(ctx context.Context, rec *entity.HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]entity.HistoryRecord, error)
}
