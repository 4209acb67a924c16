package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/eval"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: an anchor, a
// timeline, and the states expected at a set of checkpoints.
type Fixture struct {
	Description string              `json:"description"`
	Anchor      state.Anchor        `json:"anchor"`
	Config      FixtureConfig       `json:"config"`
	Events      []FixtureEvent      `json:"events"`
	Checkpoints []FixtureCheckpoint `json:"checkpoints"`
}

// FixtureEvent is one timeline event. Either Type names a catalog entry or
// Custom carries the spec inline.
type FixtureEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Custom     *event.Spec    `json:"custom,omitempty"`
	Severity   float64        `json:"severity"`
	At         time.Time      `json:"at"`
	BaseShifts []FixtureShift `json:"base_shifts,omitempty"`
}

// FixtureShift is a base-shift request; its time is the event's.
type FixtureShift struct {
	Trait state.Trait `json:"trait"`
	Raw   float64     `json:"raw"`
	Age   float64     `json:"age,omitempty"`
}

// FixtureCheckpoint lists expected values at one instant. Only the named
// dimensions and traits are compared. InScope, when set, checks the scope size.
type FixtureCheckpoint struct {
	Label   string             `json:"label"`
	At      time.Time          `json:"at"`
	State   map[string]float64 `json:"state"`
	Traits  map[string]float64 `json:"traits,omitempty"`
	InScope *int               `json:"in_scope,omitempty"`
}

// FixtureConfig holds comparison settings for a replay run.
type FixtureConfig struct {
	Tolerance float64 `json:"tolerance"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToEvent converts a FixtureEvent to a domain Event targeting entityID.
func (fe *FixtureEvent) ToEvent(entityID string) event.Event {
	shifts := make([]develop.Request, len(fe.BaseShifts))
	for i, s := range fe.BaseShifts {
		shifts[i] = develop.Request{Trait: s.Trait, Raw: s.Raw, Age: s.Age}
	}

	var ev event.Event
	if fe.Custom != nil {
		ev = event.NewCustom(*fe.Custom, entityID, fe.At, fe.Severity, shifts...)
	} else {
		ev = event.New(fe.Type, entityID, fe.At, fe.Severity, shifts...)
	}
	if fe.ID != "" {
		ev.ID = fe.ID
	}
	return ev
}

// ToCheckpoint converts a FixtureCheckpoint to a domain Checkpoint.
func (fc *FixtureCheckpoint) ToCheckpoint() (Checkpoint, error) {
	cp := Checkpoint{
		Label:   fc.Label,
		At:      fc.At,
		State:   make(map[state.Dimension]float64, len(fc.State)),
		Traits:  make(map[state.Trait]float64, len(fc.Traits)),
		InScope: -1,
	}
	for name, v := range fc.State {
		d, err := state.ParseDimension(name)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", fc.Label, err)
		}
		cp.State[d] = v
	}
	for name, v := range fc.Traits {
		tr, err := state.ParseTrait(name)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", fc.Label, err)
		}
		cp.Traits[tr] = v
	}
	if fc.InScope != nil {
		cp.InScope = *fc.InScope
	}
	return cp, nil
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.Tolerance > 0 {
		cfg.Tolerance = fc.Tolerance
	}
	return cfg
}

// Resolve converts the whole fixture to domain values.
func (f *Fixture) Resolve() (state.Anchor, []event.Event, []Checkpoint, ReplayConfig, error) {
	events := make([]event.Event, len(f.Events))
	for i := range f.Events {
		events[i] = f.Events[i].ToEvent(f.Anchor.EntityID)
	}
	checkpoints := make([]Checkpoint, 0, len(f.Checkpoints))
	for i := range f.Checkpoints {
		cp, err := f.Checkpoints[i].ToCheckpoint()
		if err != nil {
			return state.Anchor{}, nil, nil, ReplayConfig{}, err
		}
		checkpoints = append(checkpoints, cp)
	}
	sort.SliceStable(checkpoints, func(i, j int) bool { return checkpoints[i].At.Before(checkpoints[j].At) })
	return f.Anchor, events, checkpoints, f.Config.ToReplayConfig(), nil
}

// #endregion fixture-loader

// DefaultReplayConfig compares with a tight tolerance and default eval bounds.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Tolerance:  1e-9,
		EvalConfig: eval.DefaultEvalConfig(),
	}
}
