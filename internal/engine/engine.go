// Package engine composes an entity's state at any instant from its anchor and
// event timeline. StateAt is a pure function: no clocks, no caches, no mutation.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/decay"
	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/timeline"
)

var (
	// ErrNoAnchor means the entity has no reference snapshot to compute from.
	ErrNoAnchor = errors.New("no anchor")
	// ErrAnchorExists means the entity's anchor was already set.
	ErrAnchorExists = errors.New("anchor already set")
)

// #region engine
// Options overrides the engine's calibration. Nil fields use the defaults.
type Options struct {
	Decay   *decay.Model
	Develop *develop.Pipeline
}

// Engine computes snapshots. It holds only immutable calibration and is safe for
// concurrent use.
type Engine struct {
	catalog event.Catalog
	decay   *decay.Model
	develop *develop.Pipeline
}

// New creates an engine resolving named event types against cat.
func New(cat event.Catalog, opts Options) *Engine {
	e := &Engine{catalog: cat, decay: opts.Decay, develop: opts.Develop}
	if e.decay == nil {
		e.decay = decay.DefaultModel()
	}
	if e.develop == nil {
		e.develop = develop.NewPipeline(develop.DefaultConfig())
	}
	return e
}

// Catalog returns the catalog events are resolved against.
func (e *Engine) Catalog() event.Catalog {
	return e.catalog
}

// #endregion engine

// #region state-at
// StateAt computes the entity's snapshot at instant at.
//
// Forward (at >= anchor): every in-scope event adds its permanent delta plus its
// acute and chronic deltas decayed over at - t. Formative events fold into the
// trait ledger starting from the anchor's budget.
//
// Backward (at < anchor): the anchor already contains every earlier event, so each
// in-scope event's contribution as it stood at the anchor instant is removed. The
// ledger's starting budget is solved so that folding ends at the anchor's budget.
//
// Every value is clamped to its range after composition.
func (e *Engine) StateAt(anchor *state.Anchor, events []event.Event, at time.Time) (Snapshot, error) {
	if anchor == nil {
		return Snapshot{}, ErrNoAnchor
	}

	scope := timeline.Resolve(anchor.Timestamp, at, ordered(events))
	snap := Snapshot{
		EntityID:  anchor.EntityID,
		At:        at,
		AnchorAt:  anchor.Timestamp,
		Direction: scope.Direction,
		InScope:   scope.IDs(),
	}

	// Measure point for decay and severe-shift recovery.
	measure := at
	if scope.Direction == state.Backward {
		measure = anchor.Timestamp
	}

	var dims state.Vector
	for _, ev := range scope.Events {
		applied, err := ev.Deltas(e.catalog)
		if err != nil {
			return Snapshot{}, fmt.Errorf("state at %s: %w", at.Format(time.RFC3339), err)
		}
		elapsed := measure.Sub(ev.Timestamp)
		dims = dims.Add(applied.Permanent.Add(e.decay.Decay(applied.Acute, applied.Chronic, elapsed)))
	}

	entries := e.entries(anchor, scope.Events)
	var traits state.TraitVector
	if scope.Direction == state.Forward {
		snap.Ledger, snap.TraitBudget = e.develop.Fold(entries, anchor.TraitBudget)
	} else {
		snap.TraitBudget = e.develop.SolveStart(entries, anchor.TraitBudget)
		snap.Ledger, _ = e.develop.Fold(entries, snap.TraitBudget)
	}
	for _, rec := range snap.Ledger {
		traits[rec.Trait] += rec.ContributionAt(measure)
	}

	if scope.Direction == state.Forward {
		snap.State = anchor.State.Add(dims).Clamp()
		snap.Traits = anchor.Traits.Add(traits).Clamp()
	} else {
		snap.State = anchor.State.Sub(dims).Clamp()
		snap.Traits = anchor.Traits.Add(negate(traits)).Clamp()
	}
	if snap.Ledger == nil {
		snap.Ledger = []develop.Record{}
	}
	return snap, nil
}

// #endregion state-at

// #region helpers
// entries flattens the base-shift requests of events in order. Requests without an
// age take it from the anchor's birth date; requests without a time take the event's.
func (e *Engine) entries(anchor *state.Anchor, events []event.Event) []develop.Entry {
	var out []develop.Entry
	for _, ev := range events {
		for _, en := range ev.Entries() {
			if en.Request.At.IsZero() {
				en.Request.At = ev.Timestamp
			}
			if en.Request.Age == 0 {
				en.Request.Age = anchor.AgeAt(ev.Timestamp)
			}
			out = append(out, en)
		}
	}
	return out
}

// ordered returns events sorted by timestamp, keeping the relative order of ties.
func ordered(events []event.Event) []event.Event {
	if sort.SliceIsSorted(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) }) {
		return events
	}
	out := make([]event.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func negate(v state.TraitVector) state.TraitVector {
	for i := range v {
		v[i] = -v[i]
	}
	return v
}

// #endregion helpers
