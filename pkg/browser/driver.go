package browser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Driver implements Session on top of Playwright. It owns exactly one
// browser tab and every resource behind it.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	closed  bool
}

var _ Session = (*Driver)(nil)

// New launches a headless Chromium tab. If opts.StorageState is set the
// context is restored from it, which is what lets a later run skip
// authentication entirely.
func New(opts Options) (*Driver, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("browser: install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("browser: start playwright: %w", err)
	}

	d := &Driver{pw: pw, timeout: opts.Timeout}

	d.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--no-sandbox", "--disable-setuid-sandbox"},
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	var statePath string
	if len(opts.StorageState) > 0 {
		statePath, err = writeTempState(opts.StorageState)
		if err != nil {
			d.Close()
			return nil, err
		}
		defer os.Remove(statePath)
		contextOpts.StorageStatePath = playwright.String(statePath)
	}

	d.context, err = d.browser.NewContext(contextOpts)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser: create context: %w", err)
	}
	d.context.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	d.page, err = d.context.NewPage()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	d.page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return d, nil
}

// writeTempState stages an opaque storage-state blob on disk so Playwright
// can load it at context creation. The blob is never parsed here.
func writeTempState(state []byte) (string, error) {
	f, err := os.CreateTemp("", "planpilot-state-*.json")
	if err != nil {
		return "", fmt.Errorf("browser: stage storage state: %w", err)
	}
	if _, err := f.Write(state); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("browser: stage storage state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("browser: stage storage state: %w", err)
	}
	return f.Name(), nil
}

// Navigate loads url and waits for the network to go idle.
func (d *Driver) Navigate(url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return wrapErr(fmt.Errorf("browser: navigate %s: %w", url, err))
	}
	return nil
}

// URL returns the current page URL.
func (d *Driver) URL() string {
	return d.page.URL()
}

// WaitForSelector waits up to timeout for selector to appear on the page.
func (d *Driver) WaitForSelector(selector string, timeout time.Duration) (Element, error) {
	if timeout == 0 {
		timeout = d.timeout
	}
	handle, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, wrapErr(fmt.Errorf("browser: wait for %q: %w", selector, err))
	}
	return &element{handle: handle}, nil
}

// WaitForURL waits up to timeout for the page URL to match pattern.
func (d *Driver) WaitForURL(pattern string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = d.timeout
	}
	err := d.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return wrapErr(fmt.Errorf("browser: wait for url %q: %w", pattern, err))
	}
	return nil
}

// Query returns the first element matching selector, or nil if none exists.
func (d *Driver) Query(selector string) (Element, error) {
	handle, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if handle == nil {
		return nil, nil
	}
	return &element{handle: handle}, nil
}

// QueryAll returns all elements matching selector.
func (d *Driver) QueryAll(selector string) ([]Element, error) {
	handles, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query all %q: %w", selector, err)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &element{handle: h})
	}
	return elements, nil
}

// Content returns the rendered HTML of the current page.
func (d *Driver) Content() (string, error) {
	content, err := d.page.Content()
	if err != nil {
		return "", fmt.Errorf("browser: read page content: %w", err)
	}
	return content, nil
}

// WaitForLoad waits for the network to settle after an in-page action.
func (d *Driver) WaitForLoad() error {
	err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
	if err != nil {
		return wrapErr(fmt.Errorf("browser: wait for load: %w", err))
	}
	return nil
}

// StorageState exports the context's storage as an opaque blob. The blob's
// format is owned by Playwright; nothing here inspects it.
func (d *Driver) StorageState() ([]byte, error) {
	if d.context == nil {
		return nil, fmt.Errorf("browser: no context to export")
	}
	f, err := os.CreateTemp("", "planpilot-state-*.json")
	if err != nil {
		return nil, fmt.Errorf("browser: export storage state: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if _, err := d.context.StorageState(path); err != nil {
		return nil, fmt.Errorf("browser: export storage state: %w", err)
	}
	state, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browser: export storage state: %w", err)
	}
	return state, nil
}

// Close tears everything down in page -> context -> browser -> driver order.
// Errors during teardown are ignored so cleanup always completes.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.page != nil {
		_ = d.page.Close()
	}
	if d.context != nil {
		_ = d.context.Close()
	}
	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			return fmt.Errorf("browser: stop playwright: %w", err)
		}
	}
	return nil
}

// element wraps a Playwright element handle. Handles can go stale when the
// page re-renders; callers treat per-element errors as "skip this element".
type element struct {
	handle playwright.ElementHandle
}

func (e *element) Click() error {
	if err := e.handle.Click(); err != nil {
		return wrapErr(fmt.Errorf("browser: click: %w", err))
	}
	return nil
}

func (e *element) Fill(text string) error {
	if err := e.handle.Fill(text); err != nil {
		return wrapErr(fmt.Errorf("browser: fill: %w", err))
	}
	return nil
}

func (e *element) Text() (string, error) {
	text, err := e.handle.InnerText()
	if err != nil {
		return "", wrapErr(fmt.Errorf("browser: read text: %w", err))
	}
	return text, nil
}

func (e *element) Query(selector string) (Element, error) {
	handle, err := e.handle.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if handle == nil {
		return nil, nil
	}
	return &element{handle: handle}, nil
}

// wrapErr folds Playwright's timeout error into the package sentinel so
// callers can classify with IsTimeout without importing Playwright.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrTimeout, err.Error())
	}
	return err
}
