// Package timeline keeps each entity's append-only event log and resolves which
// events are in scope for an (anchor, query time) pair.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
)

// ErrWrongEntity is returned when an event targets a different entity.
var ErrWrongEntity = errors.New("event targets a different entity")

// #region timeline
// Timeline is an append-only, timestamp-ordered event log for one entity.
// Append is serialized against concurrent readers.
type Timeline struct {
	entityID string

	mu     sync.RWMutex
	events []event.Event
}

// New creates an empty timeline for entityID.
func New(entityID string) *Timeline {
	return &Timeline{entityID: entityID}
}

// EntityID returns the owning entity.
func (t *Timeline) EntityID() string {
	return t.entityID
}

// Append inserts ev in timestamp order. Events with equal timestamps keep their
// insertion order.
func (t *Timeline) Append(ev event.Event) error {
	if ev.Target != t.entityID {
		return fmt.Errorf("%w: %q on timeline %q", ErrWrongEntity, ev.Target, t.entityID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].Timestamp.After(ev.Timestamp)
	})
	t.events = append(t.events, event.Event{})
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = ev
	return nil
}

// Events returns a copy of the log in ascending timestamp order.
func (t *Timeline) Events() []event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]event.Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of events.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// #endregion timeline

// #region resolve
// Scope is the ordered set of events a query must account for.
type Scope struct {
	Direction state.Direction
	AnchorAt  time.Time
	QueryAt   time.Time
	Events    []event.Event
}

// Resolve selects in-scope events for a query at queryAt against an anchor at
// anchorAt. Forward queries (queryAt >= anchorAt) see events in [anchorAt, queryAt].
// Backward queries see events in [queryAt, anchorAt). The result preserves the
// input order, which callers keep ascending by timestamp.
func Resolve(anchorAt, queryAt time.Time, events []event.Event) Scope {
	s := Scope{AnchorAt: anchorAt, QueryAt: queryAt, Direction: state.Forward}
	if queryAt.Before(anchorAt) {
		s.Direction = state.Backward
	}

	for _, ev := range events {
		if inScope(s.Direction, anchorAt, queryAt, ev.Timestamp) {
			s.Events = append(s.Events, ev)
		}
	}
	return s
}

func inScope(dir state.Direction, anchorAt, queryAt, ts time.Time) bool {
	if dir == state.Forward {
		return !ts.Before(anchorAt) && !ts.After(queryAt)
	}
	return !ts.Before(queryAt) && ts.Before(anchorAt)
}

// IDs returns the in-scope event ids in order.
func (s Scope) IDs() []string {
	out := make([]string, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.ID
	}
	return out
}

// #endregion resolve
