package synod

import (
	"context"
	"sync"
	"time"
)

// Observer is notified of the observable events of a run. Calls come from
// the processes' own goroutines, so implementations must be thread-safe.
type Observer interface {
	// Decided fires once per process, when it first handles a Decide.
	Decided(process int, value Value, elapsed time.Duration)

	// MajorityReached fires when a proposer's ack tally crosses the majority.
	MajorityReached(process int, ballot Ballot, value Value)
}

// Event kinds recorded by an EventLog
const (
	EventDecided EventKind = iota
	EventMajority
)

type EventKind int8

func (k EventKind) String() string {
	if k == EventMajority {
		return "majority-reached"
	}
	return "decided"
}

type Event struct {
	Kind    EventKind
	Process int
	Value   Value
	Ballot  Ballot        // only for EventMajority
	Elapsed time.Duration // only for EventDecided
	At      time.Time
}

// EventLog is an append-only Observer that remembers every event.
type EventLog struct {
	mu      sync.Mutex
	entries []Event
	changed chan struct{} // closed and replaced on every append
}

func NewEventLog() *EventLog {
	return &EventLog{changed: make(chan struct{})}
}

func (l *EventLog) Decided(process int, value Value, elapsed time.Duration) {
	l.add(Event{Kind: EventDecided, Process: process, Value: value,
		Ballot: NoBallot, Elapsed: elapsed})
}

func (l *EventLog) MajorityReached(process int, ballot Ballot, value Value) {
	l.add(Event{Kind: EventMajority, Process: process, Value: value, Ballot: ballot})
}

func (l *EventLog) add(e Event) {
	e.At = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	close(l.changed)
	l.changed = make(chan struct{})
}

// Events returns a copy of the events of the given kind, in arrival order.
func (l *EventLog) Events(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *EventLog) Decisions() []Event {
	return l.Events(EventDecided)
}

func (l *EventLog) count(kind EventKind) (int, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n, l.changed
}

// Wait blocks until at least n events of the given kind were logged or ctx
// is done, in which case it returns ctx.Err().
func (l *EventLog) Wait(ctx context.Context, kind EventKind, n int) error {
	for {
		got, changed := l.count(kind)
		if got >= n {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
