// Package twofactor coordinates the out-of-band delivery of a one-time
// verification code into an in-flight login. The login goroutine suspends on
// a pending request; the chat layer resolves it when the user sends a code.
// Each request is a distinct object with its own channel, so a stale code
// from an earlier run can never resolve a later one.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCode is returned when a delivered code is not 4-8 digits.
	ErrInvalidCode = errors.New("twofactor: code must be 4 to 8 digits")

	// ErrNoPending is returned when a code arrives but nothing is waiting.
	ErrNoPending = errors.New("twofactor: no verification pending")

	// ErrTimeout is returned when no code arrives within the wait ceiling.
	ErrTimeout = errors.New("twofactor: timed out waiting for code")
)

// DefaultTimeout is how long a login waits for a code before giving up.
const DefaultTimeout = 120 * time.Second

var codePattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// ValidCode reports whether code is an acceptable verification code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// request tracks one suspended login waiting for a code.
type request struct {
	id        string
	code      chan string
	closeOnce sync.Once
}

// Manager owns the single pending code request. At most one login flow is
// active per process, so at most one request is pending at a time.
type Manager struct {
	mu      sync.Mutex
	pending *request
	timeout time.Duration
}

// NewManager creates a manager with the given wait ceiling.
// A zero timeout selects DefaultTimeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout}
}

// Pending reports whether a login is currently waiting for a code.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Await publishes a pending request and suspends until a code is delivered,
// the wait ceiling elapses, or ctx is cancelled. The request is cleared on
// every exit path.
func (m *Manager) Await(ctx context.Context) (string, error) {
	req := &request{
		id:   uuid.New().String(),
		code: make(chan string, 1),
	}
	m.setPending(req)
	defer m.clearPending(req)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twofactor: wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return "", ErrTimeout
	case code, ok := <-req.code:
		if !ok {
			return "", ErrTimeout
		}
		return code, nil
	}
}

// Deliver resolves the pending request with code. It validates the code
// format first; an invalid code is rejected and leaves the request pending.
func (m *Manager) Deliver(code string) error {
	if !ValidCode(code) {
		return ErrInvalidCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return ErrNoPending
	}

	// Non-blocking send: the waiter may already be cleaning up.
	select {
	case m.pending.code <- code:
	default:
	}
	return nil
}

func (m *Manager) setPending(req *request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = req
}

// clearPending removes req if it is still the pending request and closes its
// channel exactly once. Safe against a concurrent Deliver.
func (m *Manager) clearPending(req *request) {
	m.mu.Lock()
	if m.pending == req {
		m.pending = nil
	}
	m.mu.Unlock()

	req.closeOnce.Do(func() {
		close(req.code)
	})
}
