package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/metrics"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/timeline"
)

type entity struct {
	anchor   state.Anchor
	timeline *timeline.Timeline
}

// Registry holds every entity's anchor and timeline in memory. Anchors are set once;
// timelines only grow. Safe for concurrent use.
type Registry struct {
	engine *Engine
	log    *slog.Logger

	mu       sync.RWMutex
	entities map[string]*entity
}

// NewRegistry creates an empty registry computing with eng.
func NewRegistry(eng *Engine, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{engine: eng, log: logger, entities: make(map[string]*entity)}
}

// Engine returns the registry's engine.
func (r *Registry) Engine() *Engine {
	return r.engine
}

// SetAnchor registers a new entity with its reference snapshot.
func (r *Registry) SetAnchor(a state.Anchor) error {
	if a.EntityID == "" {
		return errors.New("anchor: empty entity id")
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("anchor %s: zero timestamp", a.EntityID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[a.EntityID]; ok {
		return fmt.Errorf("%w: %s", ErrAnchorExists, a.EntityID)
	}
	r.entities[a.EntityID] = &entity{anchor: a, timeline: timeline.New(a.EntityID)}
	metrics.Entities.Set(float64(len(r.entities)))
	r.log.Debug("anchor set", "entity", a.EntityID, "at", a.Timestamp)
	return nil
}

// Anchor returns the entity's anchor.
func (r *Registry) Anchor(id string) (state.Anchor, error) {
	ent, err := r.lookup(id)
	if err != nil {
		return state.Anchor{}, err
	}
	return ent.anchor, nil
}

// Append adds ev to its target's timeline. Events whose spec cannot be resolved
// are rejected so that later queries cannot fail on them.
func (r *Registry) Append(ev event.Event) error {
	err := r.append(ev)
	metrics.AppendsTotal.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

func (r *Registry) append(ev event.Event) error {
	ent, err := r.lookup(ev.Target)
	if err != nil {
		return err
	}
	if _, err := ev.Spec(r.engine.catalog); err != nil {
		return err
	}
	if err := ent.timeline.Append(ev); err != nil {
		return err
	}
	r.log.Debug("event appended", "entity", ev.Target, "event", ev.ID, "type", ev.Type, "at", ev.Timestamp)
	return nil
}

// Events returns a copy of the entity's timeline.
func (r *Registry) Events(id string) ([]event.Event, error) {
	ent, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return ent.timeline.Events(), nil
}

// StateAt computes the entity's snapshot at instant at.
func (r *Registry) StateAt(id string, at time.Time) (Snapshot, error) {
	start := time.Now()
	ent, err := r.lookup(id)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("", metrics.Result(err)).Inc()
		return Snapshot{}, err
	}

	anchor := ent.anchor
	snap, err := r.engine.StateAt(&anchor, ent.timeline.Events(), at)
	dir := anchor.DirectionOf(at).String()
	metrics.QueriesTotal.WithLabelValues(dir, metrics.Result(err)).Inc()
	if err != nil {
		return Snapshot{}, err
	}
	metrics.QueryDuration.WithLabelValues(dir).Observe(time.Since(start).Seconds())
	metrics.EventsInScope.Observe(float64(len(snap.InScope)))

	r.log.Debug("state computed", "entity", id, "at", at, "direction", dir, "in_scope", len(snap.InScope))
	return snap, nil
}

// Entities returns the registered entity ids in sorted order.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entities))
	for id := range r.entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(id string) (*entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q", ErrNoAnchor, id)
	}
	return ent, nil
}
