// Package notify defines the one-way event sink the automation core uses to
// report progress and errors. Delivery failure must never affect the run's
// outcome, so senders log and continue.
package notify

import (
	"fmt"
	"log/slog"
)

// Kind classifies a notification.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Error
)

// Notification is one human-readable progress or error message.
type Notification struct {
	Message string
	Kind    Kind
}

// Notifier is the interface for delivering notifications.
type Notifier interface {
	Send(n Notification) error
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification) error

func (f Func) Send(n Notification) error { return f(n) }

// Infof builds an Info notification from a format string.
func Infof(format string, args ...any) Notification {
	return Notification{Message: fmt.Sprintf(format, args...), Kind: Info}
}

// Successf builds a Success notification from a format string.
func Successf(format string, args ...any) Notification {
	return Notification{Message: fmt.Sprintf(format, args...), Kind: Success}
}

// Warningf builds a Warning notification from a format string.
func Warningf(format string, args ...any) Notification {
	return Notification{Message: fmt.Sprintf(format, args...), Kind: Warning}
}

// Errorf builds an Error notification from a format string.
func Errorf(format string, args ...any) Notification {
	return Notification{Message: fmt.Sprintf(format, args...), Kind: Error}
}

// MultiNotifier sends to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers and returns the last error.
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LogNotifier mirrors every notification into the process log.
type LogNotifier struct{}

func (LogNotifier) Send(n Notification) error {
	switch n.Kind {
	case Warning:
		slog.Warn(n.Message)
	case Error:
		slog.Error(n.Message)
	default:
		slog.Info(n.Message)
	}
	return nil
}

// NoopNotifier does nothing (for testing or disabled notifications).
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
