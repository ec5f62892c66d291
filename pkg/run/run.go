// Package run orchestrates one end-to-end automation cycle: authenticate,
// scan the dashboard, then complete outstanding tasks per category. At most
// one run is active per process, enforced by an explicit slot rather than a
// global flag.
package run

import (
	"errors"
	"sync"
	"time"
)

// ErrRunActive is returned when a trigger arrives while a run is in flight.
// New triggers are rejected, not queued.
var ErrRunActive = errors.New("run: a run is already active")

// ErrNoCategories means the dashboard scan found nothing to work on.
var ErrNoCategories = errors.New("run: no categories found on dashboard")

// Stage identifies how far a run has progressed.
type Stage int

const (
	StageInitializing Stage = iota
	StageAuthenticating
	StageScanning
	StageWalking
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StageAuthenticating:
		return "authenticating"
	case StageScanning:
		return "scanning dashboard"
	case StageWalking:
		return "completing tasks"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Run is one execution of the full automation cycle.
type Run struct {
	ID        string
	Owner     string
	Stage     Stage
	StartedAt time.Time
}

// Slot is the process-wide active-run holder. TryAcquire and Release
// guarantee the single-run invariant without shared globals.
type Slot struct {
	mu     sync.Mutex
	active *Run
}

// TryAcquire installs r as the active run. Returns false if one is already
// active.
func (s *Slot) TryAcquire(r *Run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false
	}
	s.active = r
	return true
}

// Release clears the slot.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// Active returns a snapshot of the active run, if any.
func (s *Slot) Active() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Run{}, false
	}
	return *s.active, true
}
