// Package browser provides a thin synchronous façade over a single headless
// browser tab. One Driver is created per automation run and owns the full
// Playwright stack (driver process, browser, context, page); Close releases
// everything regardless of how far setup got.
package browser

import (
	"errors"
	"time"
)

// ErrTimeout is returned by wait-based operations when the element or
// condition did not appear within the budget. Callers treat it as "absent",
// not as a fatal condition, unless the stage explicitly escalates it.
var ErrTimeout = errors.New("browser: timed out")

// DefaultTimeout bounds every operation unless overridden per call.
const DefaultTimeout = 30 * time.Second

// Element is a handle to a DOM element on the live page.
type Element interface {
	// Click clicks the element.
	Click() error

	// Fill replaces the element's value with text.
	Fill(text string) error

	// Text returns the element's inner text.
	Text() (string, error)

	// Query returns the first descendant matching selector, or nil if none.
	Query(selector string) (Element, error)
}

// Page is the read/interact surface of the driver's single tab. It is the
// interface the automation stages consume, so tests can substitute fakes.
type Page interface {
	// Navigate loads url and waits for the network to go idle.
	Navigate(url string) error

	// URL returns the current page URL.
	URL() string

	// WaitForSelector waits up to timeout for selector to appear.
	// Returns ErrTimeout (wrapped) when it does not.
	WaitForSelector(selector string, timeout time.Duration) (Element, error)

	// WaitForURL waits up to timeout for the page URL to match pattern
	// (glob syntax, e.g. "**/plan-dashboard").
	WaitForURL(pattern string, timeout time.Duration) error

	// Query returns the first element matching selector, or nil if none.
	Query(selector string) (Element, error)

	// QueryAll returns all elements matching selector.
	QueryAll(selector string) ([]Element, error)

	// Content returns the full rendered HTML of the page.
	Content() (string, error)

	// WaitForLoad waits for the network to settle after an in-page action.
	WaitForLoad() error
}

// Session is a Page plus the lifecycle operations the run orchestrator needs.
type Session interface {
	Page

	// StorageState exports the context's cookies and local storage as an
	// opaque blob suitable for Options.StorageState on a later run.
	StorageState() ([]byte, error)

	// Close tears down page, context, browser, and the Playwright driver.
	// Safe to call more than once.
	Close() error
}

// Options configures a new Driver.
type Options struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// StorageState is a previously exported session blob. Nil means a
	// fresh, unauthenticated context.
	StorageState []byte

	// Timeout is the default operation timeout. Zero means DefaultTimeout.
	Timeout time.Duration
}

// IsTimeout reports whether err is (or wraps) a wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
