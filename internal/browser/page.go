package browser

import (
	"errors"
	"fmt"
	"time"
	"unsubscribe-agent/internal/ports"

	"github.com/playwright-community/playwright-go"
)

// DataFrameSelector matches an iframe that carries its document inline as
// base64 HTML.
const DataFrameSelector = `iframe[src^="data:text/html;base64,"]`

var errNoResponse = errors.New("navigation returned no response")

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

type frameAdapter struct {
	frame         playwright.Frame
	actionTimeout time.Duration
}

func (f *frameAdapter) QuerySelector(selector string) (ports.Element, error) {
	handle, err := f.frame.QuerySelector(selector)
	if err != nil {
		return nil, err
	}

	if handle == nil {
		return nil, nil
	}

	return &elementAdapter{handle: handle, actionTimeout: f.actionTimeout}, nil
}

func (f *frameAdapter) QuerySelectorAll(selector string) ([]ports.Element, error) {
	handles, err := f.frame.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}

	elements := make([]ports.Element, 0, len(handles))
	for _, handle := range handles {
		elements = append(elements, &elementAdapter{handle: handle, actionTimeout: f.actionTimeout})
	}

	return elements, nil
}

func (f *frameAdapter) Evaluate(script string, arg ...any) (any, error) {
	return f.frame.Evaluate(script, arg...)
}

func (f *frameAdapter) Content() (string, error) {
	return f.frame.Content()
}

func (f *frameAdapter) InnerText() (string, error) {
	return f.frame.InnerText("body")
}

type pageAdapter struct {
	*frameAdapter

	page playwright.Page
}

func newPage(page playwright.Page, actionTimeout time.Duration) *pageAdapter {
	return &pageAdapter{
		frameAdapter: &frameAdapter{frame: page.MainFrame(), actionTimeout: actionTimeout},
		page:         page,
	}
}

func (p *pageAdapter) Goto(url string, timeout time.Duration) error {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return err
	}

	if resp == nil {
		return errNoResponse
	}

	return nil
}

func (p *pageAdapter) URL() string {
	return p.page.URL()
}

func (p *pageAdapter) Route(pattern string, handler func(ports.Route)) error {
	return p.page.Route(pattern, func(route playwright.Route) {
		handler(&routeAdapter{route: route})
	})
}

func (p *pageAdapter) WaitForNetworkIdle(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
}

func (p *pageAdapter) WaitForURLChange(from string, timeout time.Duration) error {
	return p.page.WaitForURL(func(current string) bool {
		return current != from
	}, playwright.PageWaitForURLOptions{
		Timeout: ms(timeout),
	})
}

func (p *pageAdapter) CountText(pattern string) (int, error) {
	raw, err := p.page.Evaluate(countTextScript, pattern)
	if err != nil {
		return 0, err
	}

	switch n := raw.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected match count %T", raw)
	}
}

func (p *pageAdapter) WaitForText(pattern string, seen int, timeout time.Duration) error {
	_, err := p.page.WaitForFunction(waitForTextScript, []any{pattern, seen}, playwright.PageWaitForFunctionOptions{
		Timeout: ms(timeout),
	})

	return err
}

func (p *pageAdapter) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})

	return err
}

func (p *pageAdapter) NestedDataFrame() (ports.Frame, error) {
	handle, err := p.page.QuerySelector(DataFrameSelector)
	if err != nil || handle == nil {
		return nil, err
	}

	frame, err := handle.ContentFrame()
	if err != nil || frame == nil {
		return nil, err
	}

	return &frameAdapter{frame: frame, actionTimeout: p.actionTimeout}, nil
}

func (p *pageAdapter) DataFrameHTML() (string, bool, error) {
	handle, err := p.page.QuerySelector(DataFrameSelector)
	if err != nil || handle == nil {
		return "", false, err
	}

	src, err := handle.GetAttribute("src")
	if err != nil {
		return "", false, err
	}

	return DecodeDataHTML(src)
}

type routeAdapter struct {
	route playwright.Route
}

func (r *routeAdapter) ResourceType() string {
	return r.route.Request().ResourceType()
}

func (r *routeAdapter) URL() string {
	return r.route.Request().URL()
}

func (r *routeAdapter) Abort() error {
	return r.route.Abort()
}

func (r *routeAdapter) Continue() error {
	return r.route.Continue()
}

type elementAdapter struct {
	handle        playwright.ElementHandle
	actionTimeout time.Duration
}

func (e *elementAdapter) TagName() (string, error) {
	return evalString(e.handle, tagNameScript)
}

func (e *elementAdapter) Attribute(name string) (string, bool, error) {
	value, err := e.handle.Evaluate(attributeScript, name)
	if err != nil {
		return "", false, err
	}

	s, ok := value.(string)

	return s, ok, nil
}

func (e *elementAdapter) Text() (string, error) {
	return e.handle.InnerText()
}

func (e *elementAdapter) InputValue() (string, error) {
	return e.handle.InputValue()
}

func (e *elementAdapter) IsChecked() (bool, error) {
	return e.handle.IsChecked()
}

// Click tries a regular click, then a forced click, then a DOM click, and
// returns every failure when none of them lands.
func (e *elementAdapter) Click() error {
	strategies := []struct {
		name string
		fn   func() error
	}{
		{
			name: "click",
			fn: func() error {
				return e.handle.Click(playwright.ElementHandleClickOptions{Timeout: ms(e.actionTimeout)})
			},
		},
		{
			name: "force_click",
			fn: func() error {
				return e.handle.Click(playwright.ElementHandleClickOptions{
					Timeout: ms(e.actionTimeout),
					Force:   playwright.Bool(true),
				})
			},
		},
		{
			name: "js_click",
			fn: func() error {
				_, err := e.handle.Evaluate(jsClickScript)

				return err
			},
		},
	}

	var errs []error

	for _, strategy := range strategies {
		err := strategy.fn()
		if err == nil {
			return nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", strategy.name, err))
	}

	return errors.Join(errs...)
}

func (e *elementAdapter) Fill(value string) error {
	return e.handle.Fill(value, playwright.ElementHandleFillOptions{Timeout: ms(e.actionTimeout)})
}

func (e *elementAdapter) Check() error {
	return e.handle.Check(playwright.ElementHandleCheckOptions{Timeout: ms(e.actionTimeout)})
}

func (e *elementAdapter) SelectOption(value string) error {
	values := []string{value}

	_, err := e.handle.SelectOption(playwright.SelectOptionValues{Values: &values}, playwright.ElementHandleSelectOptionOptions{
		Timeout: ms(e.actionTimeout),
	})

	return err
}

func (e *elementAdapter) OptionValues() ([]string, error) {
	raw, err := e.handle.Evaluate(optionValuesScript)
	if err != nil {
		return nil, err
	}

	return toStrings(raw), nil
}

type evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

func evalString(target evaluator, script string, arg ...any) (string, error) {
	value, err := target.Evaluate(script, arg...)
	if err != nil {
		return "", err
	}

	s, _ := value.(string)

	return s, nil
}

func toStrings(raw any) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
