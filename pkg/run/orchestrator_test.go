package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/planpilot/pkg/auth"
	"github.com/entrhq/planpilot/pkg/auth/twofactor"
	"github.com/entrhq/planpilot/pkg/browser"
	"github.com/entrhq/planpilot/pkg/history"
	"github.com/entrhq/planpilot/pkg/notify"
	"github.com/entrhq/planpilot/pkg/target"
)

type fakeElement struct {
	text     string
	clicks   int
	children map[string]*fakeElement
}

func (e *fakeElement) Click() error           { e.clicks++; return nil }
func (e *fakeElement) Fill(text string) error { return nil }
func (e *fakeElement) Text() (string, error)  { return e.text, nil }

func (e *fakeElement) Query(selector string) (browser.Element, error) {
	if child, ok := e.children[selector]; ok {
		return child, nil
	}
	return nil, nil
}

// fakeSession scripts a whole browser session: selector lookups, rendered
// HTML, and teardown accounting.
type fakeSession struct {
	url         string
	urlAfterNav map[string]string
	elements    map[string]*fakeElement
	lists       map[string][]browser.Element
	content     string

	state        []byte
	stateErr     error
	contentPanic string
	closes       int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		urlAfterNav: map[string]string{},
		elements:    map[string]*fakeElement{},
		lists:       map[string][]browser.Element{},
		state:       []byte(`{"cookies":[]}`),
	}
}

func (s *fakeSession) Navigate(url string) error {
	if after, ok := s.urlAfterNav[url]; ok {
		s.url = after
	} else {
		s.url = url
	}
	return nil
}

func (s *fakeSession) URL() string { return s.url }

func (s *fakeSession) WaitForSelector(selector string, timeout time.Duration) (browser.Element, error) {
	if el, ok := s.elements[selector]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("no %q: %w", selector, browser.ErrTimeout)
}

func (s *fakeSession) WaitForURL(pattern string, timeout time.Duration) error { return nil }

func (s *fakeSession) Query(selector string) (browser.Element, error) {
	if el, ok := s.elements[selector]; ok {
		return el, nil
	}
	return nil, nil
}

func (s *fakeSession) QueryAll(selector string) ([]browser.Element, error) {
	return s.lists[selector], nil
}

func (s *fakeSession) Content() (string, error) {
	if s.contentPanic != "" {
		panic(s.contentPanic)
	}
	return s.content, nil
}
func (s *fakeSession) WaitForLoad() error            { return nil }
func (s *fakeSession) StorageState() ([]byte, error) { return s.state, s.stateErr }
func (s *fakeSession) Close() error                  { s.closes++; return nil }

type fakeStore struct {
	mu    sync.Mutex
	state []byte
	saves int
}

func (f *fakeStore) Load() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeStore) Save(state []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.saves++
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []history.Record
}

func (f *fakeRecorder) Record(rec history.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) last(t *testing.T) history.Record {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.records, 1)
	return f.records[0]
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, n.Message)
	return nil
}

func (r *recordingNotifier) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

const testBase = "https://planning.test"

func dashboardCard(title string, percent, remaining int) string {
	return fmt.Sprintf(`<div class="card-plan"><div class="plan-title">%s</div>`+
		`<span class="plan-percent-num">%d</span>`+
		`<span class="plan-stat-remaining">(%d)</span></div>`, title, percent, remaining)
}

// warmSession scripts a session whose restored state lands straight on the
// dashboard, with the given cards rendered.
func warmSession(cards ...string) *fakeSession {
	sess := newFakeSession()
	sess.urlAfterNav[testBase] = testBase + "/#/plan-dashboard"
	sel := target.DefaultSelectors()
	sess.elements[sel.DashboardCards] = &fakeElement{}
	sess.content = "<html><body>" + strings.Join(cards, "") + "</body></html>"
	return sess
}

// wireCategory makes categoryName walkable on the session with the given
// task rows.
func wireCategory(sess *fakeSession, categoryName string, rows ...browser.Element) {
	sel := target.DefaultSelectors()
	button := &fakeElement{text: categoryName}
	sess.elements[sel.TasksNavLink] = &fakeElement{}
	sess.elements[sel.CategoryButtons] = button
	sess.lists[sel.CategoryButtons] = append(sess.lists[sel.CategoryButtons], button)
	sess.elements[sel.TaskTableBody] = &fakeElement{}
	sess.lists[sel.TaskRows] = rows
}

func uncheckedRow() (*fakeElement, *fakeElement) {
	sel := target.DefaultSelectors()
	icon := &fakeElement{}
	cell := &fakeElement{children: map[string]*fakeElement{sel.UncheckedIcon: icon}}
	return &fakeElement{children: map[string]*fakeElement{sel.CheckboxCell: cell}}, icon
}

func newTestOrchestrator(sess browser.Session, store *fakeStore, rec *fakeRecorder, notifier notify.Notifier, factoryErr error) *Orchestrator {
	return NewOrchestrator(store, twofactor.NewManager(time.Second), notifier, auth.Credentials{Email: "u@example.com", Password: "pw"},
		WithRecorder(rec),
		WithURLs(target.DefaultURLs(testBase)),
		WithSleep(func(time.Duration) {}),
		WithSessionFactory(func(opts browser.Options) (browser.Session, error) {
			if factoryErr != nil {
				return nil, factoryErr
			}
			return sess, nil
		}),
	)
}

func TestExecute_FullCycleOnWarmSession(t *testing.T) {
	sess := warmSession(
		dashboardCard("Bakery", 100, 0),
		dashboardCard("Deli", 50, 3),
		dashboardCard("Produce", 0, 0),
	)
	row, icon := uncheckedRow()
	wireCategory(sess, "Deli", row)

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	require.NoError(t, err)
	// Only the half-done category with items remaining gets walked.
	assert.Equal(t, 1, icon.clicks)

	record := rec.last(t)
	assert.Equal(t, history.StatusSucceeded, record.Status)
	assert.Equal(t, 1, record.CategoriesWalked)
	assert.Equal(t, 1, record.ItemsChecked)
	assert.Empty(t, record.Failure)

	assert.Equal(t, 1, sess.closes, "session torn down exactly once")
	assert.Equal(t, 2, store.saves, "saved after login and at teardown")
	_, active := orch.Active()
	assert.False(t, active, "slot released after the run")
	assert.True(t, notifier.contains("Done! Processed 1 categories (1 items checked)."))
}

func TestExecute_RejectsConcurrentRun(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{}
	rec := &fakeRecorder{}
	orch := NewOrchestrator(store, twofactor.NewManager(time.Second), notify.NoopNotifier{}, auth.Credentials{Email: "u@example.com", Password: "pw"},
		WithRecorder(rec),
		WithSessionFactory(func(opts browser.Options) (browser.Session, error) {
			<-gate
			return nil, errors.New("boom")
		}),
	)

	first := make(chan error, 1)
	go func() { first <- orch.Execute(context.Background(), "a") }()

	require.Eventually(t, func() bool {
		_, active := orch.Active()
		return active
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, orch.Execute(context.Background(), "b"), ErrRunActive)

	close(gate)
	require.Error(t, <-first)

	// The rejected trigger must leave no trace: only the first run recorded.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.records, 1)
}

func TestExecute_LoginFailureCleansUpAndRecords(t *testing.T) {
	// A cold session with no login form at all.
	sess := newFakeSession()

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	assert.ErrorIs(t, err, auth.ErrLoginFormMissing)
	record := rec.last(t)
	assert.Equal(t, history.StatusFailed, record.Status)
	assert.NotEmpty(t, record.Failure)
	assert.Equal(t, 1, sess.closes)
	_, active := orch.Active()
	assert.False(t, active)
	assert.True(t, notifier.contains("Login page did not look as expected. Aborting."))
}

func TestExecute_EmptyDashboardAborts(t *testing.T) {
	sess := newFakeSession()
	sess.urlAfterNav[testBase] = testBase + "/#/plan-dashboard"
	// No card container renders, so the scan comes back empty.

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	assert.ErrorIs(t, err, ErrNoCategories)
	assert.Equal(t, history.StatusFailed, rec.last(t).Status)
	assert.Equal(t, 1, sess.closes)
	assert.True(t, notifier.contains("No categories found. Aborting."))
}

func TestExecute_CategoryFailureDoesNotAbortRun(t *testing.T) {
	// Cheese has no matching button, Deli does. The run must finish and
	// count only Deli.
	sess := warmSession(
		dashboardCard("Cheese", 40, 2),
		dashboardCard("Deli", 50, 3),
	)
	row, _ := uncheckedRow()
	wireCategory(sess, "Deli", row)

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	require.NoError(t, err)
	record := rec.last(t)
	assert.Equal(t, history.StatusSucceeded, record.Status)
	assert.Equal(t, 1, record.CategoriesWalked)
	assert.True(t, notifier.contains("Failed to process Cheese"))
}

func TestExecute_BrowserInitFailure(t *testing.T) {
	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(nil, store, rec, notifier, errors.New("playwright missing"))

	err := orch.Execute(context.Background(), "test")

	require.Error(t, err)
	assert.Equal(t, history.StatusFailed, rec.last(t).Status)
	assert.Equal(t, 0, store.saves, "no session to persist")
	_, active := orch.Active()
	assert.False(t, active)
	assert.True(t, notifier.contains("Browser initialization failed"))
}

func TestExecute_AllCategoriesComplete(t *testing.T) {
	sess := warmSession(dashboardCard("Bakery", 100, 0))

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	require.NoError(t, err)
	record := rec.last(t)
	assert.Equal(t, 0, record.CategoriesWalked)
	assert.True(t, notifier.contains("All categories already complete!"))
}

func TestExecute_PanicMidRunStillCleansUp(t *testing.T) {
	// The page renderer blows up mid-scan. Nothing may escape the run
	// boundary without teardown, slot release, and a recorded failure.
	sess := warmSession(dashboardCard("Deli", 50, 3))
	sess.contentPanic = "renderer exploded"

	store := &fakeStore{}
	rec := &fakeRecorder{}
	notifier := &recordingNotifier{}
	orch := newTestOrchestrator(sess, store, rec, notifier, nil)

	err := orch.Execute(context.Background(), "test")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected failure")
	assert.Contains(t, err.Error(), "renderer exploded")

	record := rec.last(t)
	assert.Equal(t, history.StatusFailed, record.Status)
	assert.Contains(t, record.Failure, "renderer exploded")

	assert.Equal(t, 1, sess.closes, "session torn down exactly once")
	_, active := orch.Active()
	assert.False(t, active, "slot released after the panic")
	assert.True(t, notifier.contains("Unexpected failure"))
}

func TestSlot(t *testing.T) {
	var s Slot

	_, active := s.Active()
	assert.False(t, active)

	r := &Run{ID: "one", Owner: "test", Stage: StageInitializing, StartedAt: time.Now()}
	assert.True(t, s.TryAcquire(r))
	assert.False(t, s.TryAcquire(&Run{ID: "two"}), "slot is exclusive")

	snapshot, active := s.Active()
	assert.True(t, active)
	assert.Equal(t, "one", snapshot.ID)

	s.Release()
	_, active = s.Active()
	assert.False(t, active)
	assert.True(t, s.TryAcquire(&Run{ID: "three"}), "slot reusable after release")
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "initializing", StageInitializing.String())
	assert.Equal(t, "authenticating", StageAuthenticating.String())
	assert.Equal(t, "scanning dashboard", StageScanning.String())
	assert.Equal(t, "completing tasks", StageWalking.String())
	assert.Equal(t, "done", StageDone.String())
}
