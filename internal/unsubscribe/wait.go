package unsubscribe

import (
	"context"
	"time"
	"unsubscribe-agent/internal/ports"
)

// clickMark is the page state captured right before a click.
type clickMark struct {
	url string
	// seen is the success-text match count, or -1 when it could not be read.
	seen int
}

func markBeforeClick(page ports.Page) clickMark {
	seen, err := page.CountText(successSource)
	if err != nil {
		seen = -1
	}

	return clickMark{url: page.URL(), seen: seen}
}

// waitAfterClick returns as soon as the page navigated away from the marked
// URL, went network-idle, or shows success text it did not show before the
// click, and at the latest after limit. Text already on the page, such as
// the label of the clicked button, never ends the wait.
func waitAfterClick(page ports.Page, mark clickMark, limit time.Duration) {
	waiters := []func() error{
		func() error { return page.WaitForURLChange(mark.url, limit) },
		func() error { return page.WaitForNetworkIdle(limit) },
	}

	if mark.seen >= 0 {
		waiters = append(waiters, func() error { return page.WaitForText(successSource, mark.seen, limit) })
	}

	done := make(chan error, len(waiters))
	for _, wait := range waiters {
		go func(wait func() error) {
			done <- wait()
		}(wait)
	}

	timer := time.NewTimer(limit)
	defer timer.Stop()

	for range waiters {
		select {
		case err := <-done:
			if err == nil {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
