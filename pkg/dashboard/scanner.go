// Package dashboard reads the per-category completion counters from the
// plan dashboard into a structured snapshot. Card-level problems are
// recorded and skipped; they never abort the scan.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/planpilot/pkg/browser"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/target"
)

// Category is one dashboard card's snapshot.
type Category struct {
	Name              string
	CompletionPercent int
	ItemsRemaining    int
}

// NeedsWork reports whether the category should be visited by the task
// completion walker.
func (c Category) NeedsWork() bool {
	return c.CompletionPercent < 100 && c.ItemsRemaining > 0
}

// SkippedCard records a card that could not be parsed.
type SkippedCard struct {
	Index  int
	Reason string
}

// Report is the outcome of one dashboard scan. Categories preserve document
// order for deterministic summary reporting.
type Report struct {
	Categories []Category
	Skipped    []SkippedCard
}

// cardContainerTimeout bounds the wait for the dashboard cards to render.
const cardContainerTimeout = 10 * time.Second

// Scanner reads the dashboard through a page.
type Scanner struct {
	page     browser.Page
	urls     target.URLs
	sel      target.Selectors
	notifier notify.Notifier
}

// NewScanner creates a dashboard scanner bound to one page.
func NewScanner(page browser.Page, urls target.URLs, sel target.Selectors, notifier notify.Notifier) *Scanner {
	return &Scanner{page: page, urls: urls, sel: sel, notifier: notifier}
}

// Scan navigates to the dashboard and parses every card found. A dashboard
// with no cards yields an empty report and a warning, not an error.
func (s *Scanner) Scan() (Report, error) {
	s.notify(notify.Infof("Checking dashboard..."))

	if err := s.page.Navigate(s.urls.Dashboard); err != nil {
		return Report{}, fmt.Errorf("dashboard: open dashboard: %w", err)
	}

	if _, err := s.page.WaitForSelector(s.sel.DashboardCards, cardContainerTimeout); err != nil {
		if browser.IsTimeout(err) {
			s.notify(notify.Warningf("No dashboard cards found."))
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("dashboard: wait for cards: %w", err)
	}

	html, err := s.page.Content()
	if err != nil {
		return Report{}, fmt.Errorf("dashboard: read page: %w", err)
	}

	report, err := parseCards(html, s.sel)
	if err != nil {
		return Report{}, err
	}
	for _, skipped := range report.Skipped {
		s.notify(notify.Warningf("Skipping dashboard card %d: %s", skipped.Index, skipped.Reason))
	}
	return report, nil
}

// Summary renders the report the way it is sent to the user.
func (r Report) Summary() string {
	var b strings.Builder
	b.WriteString("Dashboard summary:\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "  - %s: %d%% (%d left)\n", c.Name, c.CompletionPercent, c.ItemsRemaining)
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseCards extracts a category per card from the rendered dashboard HTML.
func parseCards(html string, sel target.Selectors) (Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Report{}, fmt.Errorf("dashboard: parse page: %w", err)
	}

	var report Report
	doc.Find(sel.DashboardCards).Each(func(i int, card *goquery.Selection) {
		category, err := parseCard(card, sel)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedCard{Index: i, Reason: err.Error()})
			return
		}
		report.Categories = append(report.Categories, category)
	})
	return report, nil
}

func (s *Scanner) notify(n notify.Notification) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(n)
}
