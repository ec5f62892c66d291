// Package auth drives the multi-step login flow against the planning
// application: company selection, credentials, an optional out-of-band
// second factor, then dashboard arrival. The flow is a strict linear state
// machine with exactly one suspension point (AwaitingCode) and exactly one
// external input channel (the twofactor manager). No state is re-entered;
// failure from any state aborts the run. Retries are a caller concern.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/browser"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/target"
)

// State identifies where the login flow currently is.
type State int

const (
	StateStart State = iota
	StateCompanySelect
	StateCredentialsEmail
	StateCredentialsPassword
	StateSecondFactorCheck
	StateAwaitingCode
	StateSubmitted
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateCompanySelect:
		return "CompanySelect"
	case StateCredentialsEmail:
		return "CredentialsEmail"
	case StateCredentialsPassword:
		return "CredentialsPassword"
	case StateSecondFactorCheck:
		return "SecondFactorCheck"
	case StateAwaitingCode:
		return "AwaitingCode"
	case StateSubmitted:
		return "Submitted"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrLoginFormMissing means a credential input never appeared. The
	// login page structure assumption is broken; this is fatal.
	ErrLoginFormMissing = errors.New("auth: login form not found")

	// ErrSecondFactorTimeout means no verification code arrived in time.
	ErrSecondFactorTimeout = errors.New("auth: timed out waiting for verification code")

	// ErrDashboardNotReached means the post-submit navigation never
	// landed on the dashboard route.
	ErrDashboardNotReached = errors.New("auth: dashboard not reached after submit")
)

// Credentials are the process-wide login identity.
type Credentials struct {
	Email    string
	Password string
}

// Timeouts bounds each stage of the flow.
type Timeouts struct {
	// CompanyProbe bounds the company-button lookup. Absence is not an
	// error: a warm session has already passed that screen.
	CompanyProbe time.Duration

	// CredentialInput bounds the email and password input lookups.
	// Absence here is fatal.
	CredentialInput time.Duration

	// SecondFactorProbe bounds the verification-code input lookup.
	// Absence means no second factor was required this session.
	SecondFactorProbe time.Duration

	// DashboardArrival bounds the post-submit wait for the dashboard URL.
	DashboardArrival time.Duration
}

// DefaultTimeouts returns the stage budgets tuned for the target application.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		CompanyProbe:      5 * time.Second,
		CredentialInput:   10 * time.Second,
		SecondFactorProbe: 5 * time.Second,
		DashboardArrival:  30 * time.Second,
	}
}

// Machine executes the login flow on a page.
type Machine struct {
	page     browser.Page
	urls     target.URLs
	sel      target.Selectors
	creds    Credentials
	codes    *twofactor.Manager
	notifier notify.Notifier
	timeouts Timeouts
	state    State

	// sleep paces the target's client-side transitions between submits.
	// Injectable so tests do not wait.
	sleep func(time.Duration)
}

// Option configures a Machine.
type Option func(*Machine)

// WithTimeouts overrides the default stage budgets.
func WithTimeouts(t Timeouts) Option {
	return func(m *Machine) { m.timeouts = t }
}

// WithSleep overrides the pacing function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Machine) { m.sleep = sleep }
}

// NewMachine creates a login state machine bound to one page.
func NewMachine(page browser.Page, urls target.URLs, sel target.Selectors, creds Credentials, codes *twofactor.Manager, notifier notify.Notifier, opts ...Option) *Machine {
	m := &Machine{
		page:     page,
		urls:     urls,
		sel:      sel,
		creds:    creds,
		codes:    codes,
		notifier: notifier,
		timeouts: DefaultTimeouts(),
		state:    StateStart,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// Login runs the flow to completion. On success the machine is in
// StateAuthenticated; on any error it is in StateFailed.
func (m *Machine) Login(ctx context.Context) error {
	if err := m.login(ctx); err != nil {
		m.state = StateFailed
		return err
	}
	m.state = StateAuthenticated
	return nil
}

func (m *Machine) login(ctx context.Context) error {
	m.state = StateStart
	m.notify("Attempting login...")

	if err := m.page.Navigate(m.urls.Base); err != nil {
		return fmt.Errorf("auth: open login page: %w", err)
	}

	// A restored session may land straight on the dashboard. This
	// short-circuit is the whole point of persisting session state.
	if target.IsDashboardURL(m.page.URL()) {
		m.notify("Already logged in.")
		return nil
	}

	if err := m.selectCompany(); err != nil {
		return err
	}
	if err := m.enterEmail(); err != nil {
		return err
	}
	if err := m.enterPassword(); err != nil {
		return err
	}
	if err := m.handleSecondFactor(ctx); err != nil {
		return err
	}

	m.state = StateSubmitted
	if err := m.page.WaitForURL(target.DashboardURLPattern, m.timeouts.DashboardArrival); err != nil {
		return fmt.Errorf("%w: %s", ErrDashboardNotReached, err)
	}

	m.notify("Login successful.")
	return nil
}

// selectCompany clicks the company button when the selection screen is
// present. A warm session skips this screen, so absence is not an error.
func (m *Machine) selectCompany() error {
	m.state = StateCompanySelect

	button, err := m.page.WaitForSelector(m.sel.CompanyButton, m.timeouts.CompanyProbe)
	if err != nil {
		if browser.IsTimeout(err) {
			return nil
		}
		return fmt.Errorf("auth: company selection: %w", err)
	}

	m.notify("Selecting company...")
	if err := button.Click(); err != nil {
		return fmt.Errorf("auth: company selection: %w", err)
	}
	m.sleep(2 * time.Second)
	return nil
}

func (m *Machine) enterEmail() error {
	m.state = StateCredentialsEmail
	m.notify("Entering email...")

	input, err := m.page.WaitForSelector(m.sel.EmailInput, m.timeouts.CredentialInput)
	if err != nil {
		return fmt.Errorf("%w: email input: %s", ErrLoginFormMissing, err)
	}
	if err := input.Fill(m.creds.Email); err != nil {
		return fmt.Errorf("auth: fill email: %w", err)
	}
	if err := m.submit(); err != nil {
		return err
	}
	m.sleep(2 * time.Second)
	return nil
}

func (m *Machine) enterPassword() error {
	m.state = StateCredentialsPassword
	m.notify("Entering password...")

	input, err := m.page.WaitForSelector(m.sel.PasswordInput, m.timeouts.CredentialInput)
	if err != nil {
		return fmt.Errorf("%w: password input: %s", ErrLoginFormMissing, err)
	}
	if err := input.Fill(m.creds.Password); err != nil {
		return fmt.Errorf("auth: fill password: %w", err)
	}
	if err := m.submit(); err != nil {
		return err
	}
	m.sleep(3 * time.Second)
	return nil
}

// handleSecondFactor probes for a verification-code input. Absence means no
// second factor was required this session. Presence suspends the flow on the
// twofactor manager until the code arrives out of band.
func (m *Machine) handleSecondFactor(ctx context.Context) error {
	m.state = StateSecondFactorCheck
	m.notify("Checking for a verification code prompt...")

	input, err := m.page.WaitForSelector(m.sel.CodeInput, m.timeouts.SecondFactorProbe)
	if err != nil {
		if browser.IsTimeout(err) {
			return nil
		}
		return fmt.Errorf("auth: second factor probe: %w", err)
	}

	m.state = StateAwaitingCode
	m.notify("Verification code required. Send me the code to continue.")

	code, err := m.codes.Await(ctx)
	if err != nil {
		if errors.Is(err, twofactor.ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrSecondFactorTimeout, err)
		}
		return fmt.Errorf("auth: await verification code: %w", err)
	}

	m.notify("Entering verification code...")
	if err := input.Fill(code); err != nil {
		return fmt.Errorf("auth: fill verification code: %w", err)
	}
	return m.submit()
}

// submit clicks the submit control if one is present. The target sometimes
// auto-advances without one, so absence is tolerated.
func (m *Machine) submit() error {
	button, err := m.page.Query(m.sel.SubmitButton)
	if err != nil {
		return fmt.Errorf("auth: locate submit: %w", err)
	}
	if button == nil {
		return nil
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("auth: submit: %w", err)
	}
	return nil
}

func (m *Machine) notify(message string) {
	if m.notifier == nil {
		return
	}
	_ = m.notifier.Send(notify.Infof("%s", message))
}
