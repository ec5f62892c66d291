// Package tasks walks a category's task list and checks every outstanding
// item. Row-level problems (stale handles, unrecognized markup) skip the row
// and never abort the category; a failed category navigation skips the
// category and never aborts the run.
package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/planpilot/pkg/browser"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/target"
)

// ErrNavigation means the category's task list could not be reached,
// usually because no category button matched.
var ErrNavigation = errors.New("tasks: category navigation failed")

// RowState classifies a task row's checkbox.
type RowState int

const (
	RowUnchecked RowState = iota
	RowChecked
	RowUnrecognized
)

// classifyRow maps checkbox icon presence to a row state. A row showing
// both icons is unrecognized markup, not a checkable item.
func classifyRow(hasUnchecked, hasChecked bool) RowState {
	switch {
	case hasUnchecked && !hasChecked:
		return RowUnchecked
	case hasChecked && !hasUnchecked:
		return RowChecked
	default:
		return RowUnrecognized
	}
}

// SkippedRow records a row the walker could not act on.
type SkippedRow struct {
	Index  int
	Reason string
}

// Report aggregates one category walk.
type Report struct {
	Checked int
	Total   int
	Skipped []SkippedRow
}

const (
	// tableTimeout bounds the wait for the task table to render.
	tableTimeout = 10 * time.Second

	// clickDelay paces clicks so the target's client-side state registers
	// each one before the next row is read. This is a deliberate throttle:
	// removing it races the UI update.
	clickDelay = 800 * time.Millisecond

	// settleDelay follows category selection and table render.
	settleDelay = time.Second
)

// Walker processes category task lists through a page.
type Walker struct {
	page     browser.Page
	urls     target.URLs
	sel      target.Selectors
	notifier notify.Notifier

	// sleep is injectable so tests do not pay the pacing delays.
	sleep func(time.Duration)
}

// NewWalker creates a task walker bound to one page.
func NewWalker(page browser.Page, urls target.URLs, sel target.Selectors, notifier notify.Notifier) *Walker {
	return &Walker{page: page, urls: urls, sel: sel, notifier: notifier, sleep: time.Sleep}
}

// WithSleep overrides the pacing function.
func (w *Walker) WithSleep(sleep func(time.Duration)) *Walker {
	w.sleep = sleep
	return w
}

// Process navigates to categoryName's task list and checks every unchecked
// row. Returns ErrNavigation (wrapped) when the category cannot be reached.
func (w *Walker) Process(categoryName string) (Report, error) {
	if err := w.navigate(categoryName); err != nil {
		return Report{}, err
	}

	w.notify(notify.Infof("Processing: %s", categoryName))

	if _, err := w.page.WaitForSelector(w.sel.TaskTableBody, tableTimeout); err != nil {
		return Report{}, fmt.Errorf("tasks: task table for %q: %w", categoryName, err)
	}
	w.sleep(settleDelay)

	rows, err := w.page.QueryAll(w.sel.TaskRows)
	if err != nil {
		return Report{}, fmt.Errorf("tasks: list rows for %q: %w", categoryName, err)
	}

	var report Report
	for i, row := range rows {
		w.walkRow(i, row, &report)
	}

	w.notify(notify.Successf("%s: %d items checked (total: %d)", categoryName, report.Checked, report.Total))
	return report, nil
}

// walkRow handles one table row. Any per-row error is recorded as a skip.
func (w *Walker) walkRow(index int, row browser.Element, report *Report) {
	// Header rows carry a header cell instead of a checkbox cell.
	header, err := row.Query("th")
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: err.Error()})
		return
	}
	if header != nil {
		return
	}

	cell, err := row.Query(w.sel.CheckboxCell)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: err.Error()})
		return
	}
	if cell == nil {
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: "no checkbox cell"})
		return
	}

	unchecked, err := cell.Query(w.sel.UncheckedIcon)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: err.Error()})
		return
	}
	checked, err := cell.Query(w.sel.CheckedIcon)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: err.Error()})
		return
	}

	switch classifyRow(unchecked != nil, checked != nil) {
	case RowUnchecked:
		if err := unchecked.Click(); err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: err.Error()})
			return
		}
		report.Checked++
		report.Total++
		w.sleep(clickDelay)
	case RowChecked:
		report.Total++
	case RowUnrecognized:
		report.Skipped = append(report.Skipped, SkippedRow{Index: index, Reason: "no checkbox icon"})
	}
}

// navigate reaches categoryName's task list: the in-page link when present,
// the direct URL otherwise, then the matching category button by exact
// trimmed text.
func (w *Walker) navigate(categoryName string) error {
	link, err := w.page.Query(w.sel.TasksNavLink)
	if err == nil && link != nil {
		if err := link.Click(); err != nil {
			return fmt.Errorf("%w: open task list: %s", ErrNavigation, err)
		}
		if err := w.page.WaitForLoad(); err != nil {
			return fmt.Errorf("%w: open task list: %s", ErrNavigation, err)
		}
	} else {
		if err := w.page.Navigate(w.urls.Tasks); err != nil {
			return fmt.Errorf("%w: open task list: %s", ErrNavigation, err)
		}
	}

	if _, err := w.page.WaitForSelector(w.sel.CategoryButtons, tableTimeout); err != nil {
		return fmt.Errorf("%w: category buttons: %s", ErrNavigation, err)
	}

	buttons, err := w.page.QueryAll(w.sel.CategoryButtons)
	if err != nil {
		return fmt.Errorf("%w: category buttons: %s", ErrNavigation, err)
	}
	for _, button := range buttons {
		text, err := button.Text()
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != categoryName {
			continue
		}
		if err := button.Click(); err != nil {
			return fmt.Errorf("%w: select %q: %s", ErrNavigation, categoryName, err)
		}
		if err := w.page.WaitForLoad(); err != nil {
			return fmt.Errorf("%w: select %q: %s", ErrNavigation, categoryName, err)
		}
		w.sleep(settleDelay)
		return nil
	}
	return fmt.Errorf("%w: no button matching %q", ErrNavigation, categoryName)
}

func (w *Walker) notify(n notify.Notification) {
	if w.notifier == nil {
		return
	}
	_ = w.notifier.Send(n)
}
