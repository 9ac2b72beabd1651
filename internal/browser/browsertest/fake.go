// Package browsertest provides an in-memory page model that satisfies the
// browser ports. Elements are registered under the exact selector string the
// code under test queries, and every interaction is appended to a shared
// event log so tests can assert ordering.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unsubscribe-agent/internal/ports"
)

const textPollInterval = 5 * time.Millisecond

var ErrNoOption = errors.New("option not found")

type Log struct {
	mu     sync.Mutex
	events []string
}

func (l *Log) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *Log) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.events...)
}

// Index returns the position of the first event equal to event, or -1.
func (l *Log) Index(event string) int {
	for i, e := range l.Events() {
		if e == event {
			return i
		}
	}

	return -1
}

type Element struct {
	Name    string
	Tag     string
	TextVal string
	Attrs   map[string]string
	Value   string
	Checked bool
	Options []string

	ClickErr error
	FillErr  error
	CheckErr error
	OnClick  func()

	mu  sync.Mutex
	log *Log
}

func (e *Element) TagName() (string, error) {
	return strings.ToLower(e.Tag), nil
}

func (e *Element) Attribute(name string) (string, bool, error) {
	v, ok := e.Attrs[name]

	return v, ok, nil
}

func (e *Element) Text() (string, error) {
	return e.TextVal, nil
}

func (e *Element) InputValue() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.Value, nil
}

func (e *Element) IsChecked() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.Checked, nil
}

func (e *Element) Click() error {
	if e.ClickErr != nil {
		return e.ClickErr
	}

	e.log.add("click:%s", e.Name)

	if e.OnClick != nil {
		e.OnClick()
	}

	return nil
}

func (e *Element) Fill(value string) error {
	if e.FillErr != nil {
		return e.FillErr
	}

	e.mu.Lock()
	e.Value = value
	e.mu.Unlock()

	e.log.add("fill:%s=%s", e.Name, value)

	return nil
}

func (e *Element) Check() error {
	if e.CheckErr != nil {
		return e.CheckErr
	}

	e.mu.Lock()
	e.Checked = true
	e.mu.Unlock()

	e.log.add("check:%s", e.Name)

	return nil
}

func (e *Element) SelectOption(value string) error {
	for _, option := range e.Options {
		if option == value {
			e.mu.Lock()
			e.Value = value
			e.mu.Unlock()

			e.log.add("select:%s=%s", e.Name, value)

			return nil
		}
	}

	return ErrNoOption
}

func (e *Element) OptionValues() ([]string, error) {
	return append([]string(nil), e.Options...), nil
}

type EvalCall struct {
	Script string
	Args   []any
}

type Frame struct {
	Log *Log

	mu        sync.Mutex
	elements  map[string][]*Element
	evals     map[string]any
	evalCalls []EvalCall
	html      string
	text      string
}

func NewFrame(log *Log) *Frame {
	if log == nil {
		log = &Log{}
	}

	return &Frame{
		Log:      log,
		elements: make(map[string][]*Element),
		evals:    make(map[string]any),
	}
}

// Add registers el as a match for selector. Name defaults to selector.
func (f *Frame) Add(selector string, el *Element) *Element {
	f.mu.Lock()
	defer f.mu.Unlock()

	if el.Name == "" {
		el.Name = selector
	}

	el.log = f.Log
	f.elements[selector] = append(f.elements[selector], el)

	return el
}

// SetEval makes Evaluate(script) return result.
func (f *Frame) SetEval(script string, result any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evals[script] = result
}

func (f *Frame) SetHTML(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.html = html
}

func (f *Frame) SetText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text = text
}

func (f *Frame) EvalCalls() []EvalCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]EvalCall(nil), f.evalCalls...)
}

func (f *Frame) QuerySelector(selector string) (ports.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches := f.elements[selector]
	if len(matches) == 0 {
		return nil, nil
	}

	return matches[0], nil
}

func (f *Frame) QuerySelectorAll(selector string) ([]ports.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches := f.elements[selector]
	out := make([]ports.Element, 0, len(matches))

	for _, m := range matches {
		out = append(out, m)
	}

	return out, nil
}

func (f *Frame) Evaluate(script string, arg ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evalCalls = append(f.evalCalls, EvalCall{Script: script, Args: arg})

	return f.evals[script], nil
}

func (f *Frame) Content() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.html, nil
}

func (f *Frame) InnerText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.text, nil
}

type Page struct {
	*Frame

	GotoErr        error
	GotoPanic      any
	NetworkIdleErr error

	DataFrame *Frame
	DataHTML  string

	mu          sync.Mutex
	url         string
	handlers    []func(ports.Route)
	screenshots []string
}

func NewPage() *Page {
	return &Page{Frame: NewFrame(nil)}
}

func (p *Page) Goto(url string, _ time.Duration) error {
	if p.GotoPanic != nil {
		panic(p.GotoPanic)
	}

	if p.GotoErr != nil {
		return p.GotoErr
	}

	p.mu.Lock()
	p.url = url
	p.mu.Unlock()

	p.Log.add("goto:%s", url)

	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url
}

func (p *Page) Route(_ string, handler func(ports.Route)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers = append(p.handlers, handler)

	return nil
}

// Request feeds a synthetic request through the installed route handlers.
func (p *Page) Request(resourceType, url string) *Route {
	route := &Route{Type: resourceType, Address: url}

	p.mu.Lock()
	handlers := slices.Clone(p.handlers)
	p.mu.Unlock()

	for _, h := range handlers {
		h(route)
	}

	return route
}

func (p *Page) WaitForNetworkIdle(_ time.Duration) error {
	return p.NetworkIdleErr
}

// WaitForURLChange fails at once: fake pages never navigate on click.
func (p *Page) WaitForURLChange(_ string, _ time.Duration) error {
	return context.DeadlineExceeded
}

func (p *Page) CountText(pattern string) (int, error) {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return 0, err
	}

	text, _ := p.InnerText()

	return len(re.FindAllStringIndex(text, -1)), nil
}

// WaitForText polls the page text until pattern matches more than seen times.
func (p *Page) WaitForText(pattern string, seen int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		n, err := p.CountText(pattern)
		if err != nil {
			return err
		}

		if n > seen {
			return nil
		}

		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}

		time.Sleep(textPollInterval)
	}
}

func (p *Page) Screenshot(path string, _ bool) error {
	p.mu.Lock()
	p.screenshots = append(p.screenshots, path)
	p.mu.Unlock()

	p.Log.add("screenshot")

	return nil
}

func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.screenshots...)
}

func (p *Page) NestedDataFrame() (ports.Frame, error) {
	if p.DataFrame == nil {
		return nil, nil
	}

	return p.DataFrame, nil
}

func (p *Page) DataFrameHTML() (string, bool, error) {
	if p.DataHTML == "" {
		return "", false, nil
	}

	return p.DataHTML, true, nil
}

type Route struct {
	Type    string
	Address string

	mu        sync.Mutex
	aborted   bool
	continued bool
}

func (r *Route) ResourceType() string { return r.Type }
func (r *Route) URL() string          { return r.Address }

func (r *Route) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.aborted = true

	return nil
}

func (r *Route) Continue() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.continued = true

	return nil
}

func (r *Route) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.aborted
}

func (r *Route) Continued() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.continued
}

type Session struct {
	page *Page

	mu     sync.Mutex
	closes int
}

func NewSession(page *Page) *Session {
	return &Session{page: page}
}

func (s *Session) Page() ports.Page {
	return s.page
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++

	return nil
}

func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closes
}

// Launcher hands out Session for every attempt, or Err when set.
type Launcher struct {
	Session *Session
	Err     error

	mu       sync.Mutex
	launches int
}

func (l *Launcher) NewSession(_ context.Context) (ports.Session, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}

	return l.Session, nil
}

func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.launches
}
