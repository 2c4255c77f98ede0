// Package signal is the engine's typed replacement for the source's
// listener-plugin signal dispatcher (spec.md section 9: "global mutable
// listener registry" is re-architected as direct, explicit dispatch —
// no dynamic plugin discovery). Every emit is a concrete Event value;
// subscribers are plain functions registered at process startup.
package signal

import (
	"context"
	"sync"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// Kind names the lifecycle moments the engine announces (spec.md
// section 4.2's activity_created/activity_<state> signals).
type Kind string

const (
	ActivityCreated      Kind = "activity_created"
	ActivityReady        Kind = "activity_ready"
	ActivityRunning      Kind = "activity_running"
	ActivityBlocked      Kind = "activity_blocked"
	ActivitySuspended    Kind = "activity_suspended"
	ActivityFinished     Kind = "activity_finished"
	ActivityFailed       Kind = "activity_failed"
	ActivityRevoked      Kind = "activity_revoked"
	ActivityAcknowledged Kind = "activity_acknowledged"
)

// KindForState maps a state reached by a transition to its announced
// Kind, or "" for a state with no corresponding signal.
func KindForState(s workflow.State) Kind {
	switch s {
	case workflow.Ready:
		return ActivityReady
	case workflow.Running:
		return ActivityRunning
	case workflow.Blocked:
		return ActivityBlocked
	case workflow.Suspended:
		return ActivitySuspended
	case workflow.Finished:
		return ActivityFinished
	case workflow.Failed:
		return ActivityFailed
	case workflow.Revoked:
		return ActivityRevoked
	default:
		return ""
	}
}

// Event is the payload handed to every subscriber. ParentID is non-nil
// for events originating below the root, letting a subscriber wake the
// parent without a second query.
type Event struct {
	Kind           Kind
	ActivityID     int64
	IdentifierCode string
	ParentID       *int64
	State          workflow.State
}

// Subscriber receives every Event published on a Bus. It must not block
// for long: it runs synchronously, inline with the publisher, in the
// local dispatcher (Bus.Publish only returns once every subscriber has
// been invoked).
type Subscriber func(ctx context.Context, evt Event)

// Bus fans an Event out to every registered Subscriber, and optionally
// to an external transport (Redis pub/sub) for other processes.
type Bus interface {
	Subscribe(sub Subscriber)
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// localBus is the in-process dispatcher every engine instance runs,
// regardless of whether an external transport is also wired in.
type localBus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// New returns a Bus with no external transport: Publish only notifies
// this process's own Subscribers.
func New() Bus {
	return &localBus{}
}

func (b *localBus) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

func (b *localBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub(ctx, evt)
	}
	return nil
}

func (b *localBus) Close() error { return nil }
