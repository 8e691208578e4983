// Package audit keeps a bounded in-memory trail of registry mutations.
package audit

import (
	"log/slog"
	"sync"

	"github.com/ruteri/contract-registry/registry"
)

// DefaultCapacity is the number of events retained when none is configured.
const DefaultCapacity = 1024

// Log is a fixed-size ring of registry events. It is safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []registry.Event
	next   int
	full   bool
	total  uint64
	log    *slog.Logger
}

// New creates an audit log holding up to capacity events.
// A nil logger disables logging of recorded events.
func New(capacity int, log *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		events: make([]registry.Event, capacity),
		log:    log,
	}
}

// Record appends an event, overwriting the oldest once the ring is full.
// It has the registry.Observer signature.
func (l *Log) Record(ev registry.Event) {
	l.mu.Lock()
	l.events[l.next] = ev
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	l.mu.Unlock()

	if l.log != nil {
		l.log.Info("Registry event",
			slog.String("kind", string(ev.Kind)),
			slog.String("hash", ev.Hash.String()),
			slog.String("caller", ev.Caller.String()),
			slog.String("to", stateLabel(ev)))
	}
}

// Observer returns Record as a registry observer.
func (l *Log) Observer() registry.Observer {
	return l.Record
}

// Recent returns up to limit events, newest last. A limit of zero or less returns all retained events.
func (l *Log) Recent(limit int) []registry.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ordered []registry.Event
	if l.full {
		ordered = append(ordered, l.events[l.next:]...)
	}
	ordered = append(ordered, l.events[:l.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Total is the number of events recorded since creation, including evicted ones.
func (l *Log) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func stateLabel(ev registry.Event) string {
	switch ev.Kind {
	case registry.EventDeleted, registry.EventKilled:
		return "-"
	}
	return ev.To.String()
}
