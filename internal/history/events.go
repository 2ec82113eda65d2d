package history

import (
	"context"
)

// EventKind identifies the kind of store mutation that occurred.
type EventKind string

const (
	// EventAnalysisAdded is emitted after an analysis record was prepended
	EventAnalysisAdded EventKind = "analysis_added"
	// EventActivityLogAdded is emitted after an activity log was prepended
	EventActivityLogAdded EventKind = "activity_log_added"
	// EventAnalysisRemoved is emitted after a record and its logs were dropped
	EventAnalysisRemoved EventKind = "analysis_removed"
	// EventCleared is emitted after all collections were emptied
	EventCleared EventKind = "cleared"
	// EventHydrated is emitted after local state was replaced from remote
	EventHydrated EventKind = "hydrated"
)

// Event describes one store mutation. Consumers re-read the collections they
// care about from the store; the event itself carries only identity.
type Event struct {
	Kind       EventKind `json:"kind"`
	AnalysisID string    `json:"analysisId,omitempty"`
}

// DefaultEventBufferSize is the per-subscriber channel buffer. A subscriber
// that falls further behind than this drops events; consumers treat any event
// as "state changed, re-read" so dropped events only coalesce rebuilds.
const DefaultEventBufferSize = 64

type subscriber struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// Subscribe returns a channel receiving an Event after every local mutation,
// and a context that is cancelled when the subscription terminates. The
// caller must not close the channel; call Unsubscribe when done.
func (s *Store) Subscribe() (<-chan Event, context.Context) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if s.closed {
		cancel()
	}
	sub := &subscriber{
		ch:     make(chan Event, DefaultEventBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch, ctx
}

// Unsubscribe cancels the subscription created by Subscribe.
func (s *Store) Unsubscribe(ch <-chan Event) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			sub.cancel()
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

// broadcast delivers an event to every live subscriber. Cancelled subscribers
// are pruned in passing; full channels drop the event rather than block the
// mutating caller.
func (s *Store) broadcast(event Event) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	active := s.subscribers[:0:0]
	for _, sub := range s.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}
		active = append(active, sub)

		select {
		case sub.ch <- event:
		default:
			s.logger.Debug("subscriber event channel full, dropping event",
				"kind", event.Kind)
		}
	}
	s.subscribers = active
}
