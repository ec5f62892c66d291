// Package target pins down the integration contract with the production
// planning application: every URL, route fragment, and DOM selector the
// automation touches. The target UI is not under our control, so when it
// changes this is the only package that should need editing.
package target

import "strings"

// URLs holds the navigation endpoints of the planning application.
type URLs struct {
	// Base is the company-selection entry page
	Base string

	// Dashboard is the plan dashboard route
	Dashboard string

	// Tasks is the production task list route
	Tasks string
}

// Selectors holds every DOM selector the automation uses.
type Selectors struct {
	// Company selection
	CompanyButton string

	// Login form
	EmailInput    string
	PasswordInput string
	SubmitButton  string
	CodeInput     string

	// Dashboard cards
	DashboardCards  string
	CardTitle       string
	CardPercent     string
	CardRemaining   string

	// Task list
	TasksNavLink    string
	CategoryButtons string
	TaskTableBody   string
	TaskRows        string
	CheckboxCell    string
	UncheckedIcon   string
	CheckedIcon     string
}

const defaultBaseURL = "https://productionplanning-ahq-v2.owex.oliverwyman.com"

// dashboardRoute is the URL fragment that identifies an authenticated landing.
const dashboardRoute = "plan-dashboard"

// DefaultURLs returns the production endpoints, rooted at base. An empty base
// selects the default production host.
func DefaultURLs(base string) URLs {
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	return URLs{
		Base:      base,
		Dashboard: base + "/#/plan-dashboard",
		Tasks:     base + "/#/production-tasks",
	}
}

// DefaultSelectors returns the selector set for the current target UI.
func DefaultSelectors() Selectors {
	return Selectors{
		CompanyButton: "button.btn-food-lion",

		EmailInput:    `input[type="email"]`,
		PasswordInput: `input[type="password"]`,
		SubmitButton:  `input[type="submit"], button[type="submit"]`,
		CodeInput:     `input[name="otc"], input[type="tel"]`,

		DashboardCards: ".card-plan",
		CardTitle:      ".plan-title",
		CardPercent:    ".plan-percent-num",
		CardRemaining:  ".plan-stat-remaining",

		TasksNavLink:    `a[href="#/production-tasks"]`,
		CategoryButtons: ".btn-group button.btn",
		TaskTableBody:   "tbody[data-v-4461cc4c]",
		TaskRows:        "tbody[data-v-4461cc4c] > tr",
		CheckboxCell:    "td.checkbox",
		UncheckedIcon:   "i.fa-square.fa-2x",
		CheckedIcon:     "i.fa-check-square.fa-2x",
	}
}

// DashboardURLPattern is the glob the driver waits on after the final login
// submit.
const DashboardURLPattern = "**/plan-dashboard"

// IsDashboardURL reports whether url is already on the authenticated
// dashboard route.
func IsDashboardURL(url string) bool {
	return strings.Contains(url, dashboardRoute)
}
