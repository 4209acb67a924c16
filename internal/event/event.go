// Package event defines life events and the impact splitter that turns an event
// spec into permanent, acute and chronic per-dimension deltas.
package event

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/google/uuid"
)

// CustomType marks an event that carries its own Spec instead of a catalog id.
const CustomType = "custom"

// #region catalog-interface
// Catalog resolves a named event type to its static spec.
type Catalog interface {
	Lookup(eventType string) (Spec, error)
}

// #endregion catalog-interface

// #region event
// Event is one discrete life event on an entity's timeline. It is immutable once
// appended to a timeline.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Custom     *Spec             `json:"custom,omitempty"`
	Severity   float64           `json:"severity"`
	Target     string            `json:"target"`
	Timestamp  time.Time         `json:"timestamp"`
	BaseShifts []develop.Request `json:"base_shifts,omitempty"`
}

// New creates a catalog-typed event with a fresh id. Severity is clamped to [0, 1].
// Base-shift requests are stamped with the event timestamp.
func New(eventType, target string, at time.Time, severity float64, shifts ...develop.Request) Event {
	return Event{
		ID:         newID(),
		Type:       eventType,
		Severity:   clampUnit(severity),
		Target:     target,
		Timestamp:  at,
		BaseShifts: stamp(shifts, at),
	}
}

// NewCustom creates an event that carries its own spec.
func NewCustom(spec Spec, target string, at time.Time, severity float64, shifts ...develop.Request) Event {
	ev := New(CustomType, target, at, severity, shifts...)
	ev.Custom = &spec
	return ev
}

// Formative reports whether the event carries trait base-shift requests.
func (e Event) Formative() bool {
	return len(e.BaseShifts) > 0
}

// Spec resolves the event's spec: its custom spec if present, else the catalog entry.
func (e Event) Spec(c Catalog) (Spec, error) {
	if e.Custom != nil {
		return *e.Custom, nil
	}
	if e.Type == CustomType {
		return Spec{}, fmt.Errorf("event %s: custom type without spec", e.ID)
	}
	if c == nil {
		return Spec{}, fmt.Errorf("event %s: no catalog to resolve %q", e.ID, e.Type)
	}
	spec, err := c.Lookup(e.Type)
	if err != nil {
		return Spec{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	return spec, nil
}

// Deltas resolves the spec and splits it at the event's severity.
func (e Event) Deltas(c Catalog) (AppliedDeltas, error) {
	spec, err := e.Spec(c)
	if err != nil {
		return AppliedDeltas{}, err
	}
	return spec.Apply(e.Severity), nil
}

// Entries returns the event's base-shift requests tagged with its id.
func (e Event) Entries() []develop.Entry {
	out := make([]develop.Entry, len(e.BaseShifts))
	for i, r := range e.BaseShifts {
		out[i] = develop.Entry{EventID: e.ID, Request: r}
	}
	return out
}

// #endregion event

// #region helpers
func newID() string {
	return "evt_" + uuid.New().String()
}

func stamp(shifts []develop.Request, at time.Time) []develop.Request {
	if len(shifts) == 0 {
		return nil
	}
	out := make([]develop.Request, len(shifts))
	for i, s := range shifts {
		s.At = at
		out[i] = s
	}
	return out
}

// #endregion helpers
