package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/planpilot/pkg/auth"
	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/browser"
	"github.com/entrhq/planpilot/pkg/dashboard"
	"github.com/entrhq/planpilot/pkg/history"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/session"
	"github.com/entrhq/planpilot/pkg/target"
	"github.com/entrhq/planpilot/pkg/tasks"
)

// SessionFactory creates the browser session for one run. Injectable so
// tests can substitute fakes and abort at chosen stage boundaries.
type SessionFactory func(opts browser.Options) (browser.Session, error)

// Recorder persists finished runs. *history.DB satisfies it.
type Recorder interface {
	Record(rec history.Record) error
}

// Orchestrator executes runs sequentially: authentication, dashboard scan,
// then the task walker over every category that still needs work. Cleanup
// (session save, browser teardown, slot release, history record) executes
// exactly once on every exit path.
type Orchestrator struct {
	slot     *Slot
	sessions session.Store
	codes    *twofactor.Manager
	notifier notify.Notifier
	recorder Recorder

	creds    auth.Credentials
	urls     target.URLs
	sel      target.Selectors
	headless bool

	newSession SessionFactory
	sleep      func(time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a run-history recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithURLs overrides the target endpoints.
func WithURLs(urls target.URLs) Option {
	return func(o *Orchestrator) { o.urls = urls }
}

// WithSelectors overrides the target selector contract.
func WithSelectors(sel target.Selectors) Option {
	return func(o *Orchestrator) { o.sel = sel }
}

// WithHeadless controls browser visibility.
func WithHeadless(headless bool) Option {
	return func(o *Orchestrator) { o.headless = headless }
}

// WithSessionFactory overrides how browser sessions are created.
func WithSessionFactory(f SessionFactory) Option {
	return func(o *Orchestrator) { o.newSession = f }
}

// WithSleep overrides the pacing function used by the login flow and the
// task walker.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// NewOrchestrator wires an orchestrator. The notifier must tolerate delivery
// failure; the orchestrator never lets it affect a run.
func NewOrchestrator(sessions session.Store, codes *twofactor.Manager, notifier notify.Notifier, creds auth.Credentials, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		slot:     &Slot{},
		sessions: sessions,
		codes:    codes,
		notifier: notifier,
		creds:    creds,
		urls:     target.DefaultURLs(""),
		sel:      target.DefaultSelectors(),
		headless: true,
		sleep:    time.Sleep,
	}
	o.newSession = func(opts browser.Options) (browser.Session, error) {
		return browser.New(opts)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Active reports the in-flight run, if any.
func (o *Orchestrator) Active() (Run, bool) {
	return o.slot.Active()
}

// CodePending reports whether a login is waiting for a verification code.
func (o *Orchestrator) CodePending() bool {
	return o.codes.Pending()
}

// DeliverCode routes an out-of-band verification code to the suspended
// login, validating it first.
func (o *Orchestrator) DeliverCode(code string) error {
	return o.codes.Deliver(code)
}

// Execute runs one full automation cycle. It returns ErrRunActive without
// side effects when a run is already in flight. Any other error has already
// been reported through the notifier; resources are released either way.
func (o *Orchestrator) Execute(ctx context.Context, owner string) (err error) {
	r := &Run{
		ID:        uuid.New().String(),
		Owner:     owner,
		Stage:     StageInitializing,
		StartedAt: time.Now(),
	}
	if !o.slot.TryAcquire(r) {
		return ErrRunActive
	}

	var (
		cleanupOnce sync.Once
		sess        browser.Session
		walked      int
		checked     int
	)
	cleanup := func() {
		cleanupOnce.Do(func() {
			if sess != nil {
				o.saveSession(sess)
				if cerr := sess.Close(); cerr != nil {
					slog.Warn("browser teardown failed", "error", cerr)
				}
			}
			o.slot.Release()
			o.record(r, err, walked, checked)
		})
	}
	defer cleanup()

	// Nothing may escape the run boundary without cleanup running.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run: unexpected failure: %v", rec)
			o.notify(notify.Errorf("Unexpected failure: %v", rec))
		}
	}()

	o.notify(notify.Infof("Initializing browser..."))

	state, lerr := o.sessions.Load()
	if lerr != nil {
		slog.Warn("session state load failed, starting fresh", "error", lerr)
		state = nil
	}

	sess, err = o.newSession(browser.Options{Headless: o.headless, StorageState: state})
	if err != nil {
		o.notify(notify.Errorf("Browser initialization failed: %v", err))
		return fmt.Errorf("run: initialize browser: %w", err)
	}

	r.Stage = StageAuthenticating
	machine := auth.NewMachine(sess, o.urls, o.sel, o.creds, o.codes, o.notifier, auth.WithSleep(o.sleep))
	if err = machine.Login(ctx); err != nil {
		o.notify(notify.Errorf("%s", loginFailureMessage(err)))
		return err
	}
	// Persist immediately so a later run skips login even if a following
	// stage fails and the final save captures a worse state.
	o.saveSession(sess)

	r.Stage = StageScanning
	scanner := dashboard.NewScanner(sess, o.urls, o.sel, o.notifier)
	report, serr := scanner.Scan()
	if serr != nil {
		err = serr
		o.notify(notify.Errorf("Error checking dashboard: %v", serr))
		return err
	}
	if len(report.Categories) == 0 {
		err = ErrNoCategories
		o.notify(notify.Errorf("No categories found. Aborting."))
		return err
	}
	o.notify(notify.Infof("%s", report.Summary()))

	r.Stage = StageWalking
	walker := tasks.NewWalker(sess, o.urls, o.sel, o.notifier).WithSleep(o.sleep)
	for _, category := range report.Categories {
		if !category.NeedsWork() {
			continue
		}
		result, werr := walker.Process(category.Name)
		if werr != nil {
			// Per-category failures skip the category, never the run.
			o.notify(notify.Errorf("Failed to process %s: %v", category.Name, werr))
			continue
		}
		walked++
		checked += result.Checked
	}

	r.Stage = StageDone
	if walked == 0 {
		o.notify(notify.Successf("All categories already complete!"))
	} else {
		o.notify(notify.Successf("Done! Processed %d categories (%d items checked).", walked, checked))
	}
	return nil
}

// saveSession exports and persists the browser state. Persistence failure is
// logged and never affects the run's outcome.
func (o *Orchestrator) saveSession(sess browser.Session) {
	state, err := sess.StorageState()
	if err != nil {
		slog.Warn("session state export failed", "error", err)
		return
	}
	if err := o.sessions.Save(state); err != nil {
		slog.Warn("session state save failed", "error", err)
	}
}

func (o *Orchestrator) record(r *Run, runErr error, walked, checked int) {
	if o.recorder == nil {
		return
	}
	rec := history.Record{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		EndedAt:          time.Now(),
		Status:           history.StatusSucceeded,
		CategoriesWalked: walked,
		ItemsChecked:     checked,
	}
	if runErr != nil {
		rec.Status = history.StatusFailed
		rec.Failure = runErr.Error()
	}
	if err := o.recorder.Record(rec); err != nil {
		slog.Warn("run history record failed", "error", err)
	}
}

func (o *Orchestrator) notify(n notify.Notification) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Send(n); err != nil {
		slog.Warn("notification delivery failed", "error", err)
	}
}

// loginFailureMessage maps authentication failures to distinct user-facing
// messages. There is no silent failure mode.
func loginFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrSecondFactorTimeout):
		return "Timeout waiting for 2FA code. Aborting."
	case errors.Is(err, auth.ErrDashboardNotReached):
		return "Login submitted but the dashboard never loaded. Aborting."
	case errors.Is(err, auth.ErrLoginFormMissing):
		return "Login page did not look as expected. Aborting."
	default:
		return fmt.Sprintf("Login failed: %v. Aborting.", err)
	}
}
