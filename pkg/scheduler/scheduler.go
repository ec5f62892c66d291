// Package scheduler triggers automation runs on a cron schedule. A
// scheduled trigger behaves exactly like a chat-issued one: it is rejected,
// not queued, while a run is active.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires a single job on a cron expression.
type Scheduler struct {
	cron  *cron.Cron
	entry cron.EntryID
}

// New validates expr and binds job to it. The standard five-field cron
// syntax is accepted.
func New(expr string, job func()) (*Scheduler, error) {
	c := cron.New()
	entry, err := c.AddFunc(expr, job)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return &Scheduler{cron: c, entry: entry}, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight trigger callback to
// return. The triggered run itself keeps going.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Next returns the next scheduled fire time.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}
