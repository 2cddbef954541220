package surface

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
)

// Sender delivers outbound messages to whoever listens on a surface.
// Send is called with the surface's send lock held and must not call back
// into the surface.
type Sender interface {
	Send(msg *mutation.Message) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(msg *mutation.Message) error

// Send calls f(msg)
func (f SenderFunc) Send(msg *mutation.Message) error {
	return f(msg)
}

// MultiSender fans a message out to several senders. Every sender is tried;
// failures are joined.
type MultiSender []Sender

// Send delivers msg to each non-nil sender
func (m MultiSender) Send(msg *mutation.Message) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HistoryClearer discards whatever mutation history the host keeps for a
// surface, so a freshly synced client does not replay stale records.
type HistoryClearer func(uri string)

// Timer is a cancellable pending flush
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler returns the time.AfterFunc backed scheduler
func RealScheduler() Scheduler {
	return realScheduler{}
}

// Recorder observes batching activity, typically for metrics
type Recorder interface {
	MutationQueued(kind mutation.Kind)
	BatchSent(records int, reason string)
	BatchDropped(records int, reason string)
	CallSent(method string)
}

type nopRecorder struct{}

func (nopRecorder) MutationQueued(mutation.Kind) {}
func (nopRecorder) BatchSent(int, string)        {}
func (nopRecorder) BatchDropped(int, string)     {}
func (nopRecorder) CallSent(string)              {}
