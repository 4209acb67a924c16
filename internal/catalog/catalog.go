// Package catalog holds the static impact tables for named life events.
//
// The table is embedded at build time, parsed once and never mutated. Every entry
// defines all 22 impact dimensions plus the 21 chronic flags and permanence
// fractions; acquired_capability has no chronic or permanence entry.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"gopkg.in/yaml.v3"
)

// ErrUnknownEventType is returned by Lookup for an id not in the table.
var ErrUnknownEventType = errors.New("unknown event type")

//go:embed catalog.yaml
var embedded []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// #region types
// Entry is one named event type.
type Entry struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Spec        event.Spec `json:"spec"`
}

// Table is an immutable id → spec lookup. It satisfies event.Catalog.
type Table struct {
	entries map[string]Entry
	ids     []string
}

type fileEntry struct {
	ID          string             `yaml:"id"`
	Description string             `yaml:"description"`
	Impact      map[string]float64 `yaml:"impact"`
	Chronic     map[string]bool    `yaml:"chronic"`
	Permanence  map[string]float64 `yaml:"permanence"`
}

type file struct {
	Events []fileEntry `yaml:"events"`
}

// #endregion types

// #region load
// Default returns the embedded table. It panics if the embedded data is invalid,
// which can only happen through a broken build.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(embedded)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded table: %v", defaultErr))
	}
	return defaultTable
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	t := &Table{entries: make(map[string]Entry, len(f.Events))}
	for i, fe := range f.Events {
		if fe.ID == "" {
			return nil, fmt.Errorf("entry %d: missing id", i)
		}
		if _, dup := t.entries[fe.ID]; dup {
			return nil, fmt.Errorf("entry %s: duplicate id", fe.ID)
		}
		if err := checkComplete(fe); err != nil {
			return nil, fmt.Errorf("entry %s: %w", fe.ID, err)
		}
		spec, err := event.SpecFromMaps(fe.Impact, fe.Chronic, fe.Permanence)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", fe.ID, err)
		}
		t.entries[fe.ID] = Entry{ID: fe.ID, Description: fe.Description, Spec: spec}
		t.ids = append(t.ids, fe.ID)
	}
	sort.Strings(t.ids)
	return t, nil
}

func checkComplete(fe fileEntry) error {
	if len(fe.Impact) != state.NumDimensions {
		return fmt.Errorf("impact defines %d of %d dimensions", len(fe.Impact), state.NumDimensions)
	}
	if len(fe.Chronic) != state.NumDimensions-1 {
		return fmt.Errorf("chronic defines %d of %d dimensions", len(fe.Chronic), state.NumDimensions-1)
	}
	if len(fe.Permanence) != state.NumDimensions-1 {
		return fmt.Errorf("permanence defines %d of %d dimensions", len(fe.Permanence), state.NumDimensions-1)
	}
	for name, p := range fe.Permanence {
		if p < 0 || p > 1 {
			return fmt.Errorf("permanence %s=%.3f outside [0,1]", name, p)
		}
	}
	return nil
}

// #endregion load

// #region lookup
// Lookup returns the spec for an event type id.
func (t *Table) Lookup(id string) (event.Spec, error) {
	e, ok := t.entries[id]
	if !ok {
		return event.Spec{}, fmt.Errorf("%w: %q", ErrUnknownEventType, id)
	}
	return e.Spec, nil
}

// Entry returns the full catalog entry for id.
func (t *Table) Entry(id string) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// IDs returns all event type ids in sorted order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of event types.
func (t *Table) Len() int {
	return len(t.ids)
}

// #endregion lookup

// Lookup resolves id against the embedded table.
func Lookup(id string) (event.Spec, error) {
	return Default().Lookup(id)
}

// IDs lists the embedded table's ids.
func IDs() []string {
	return Default().IDs()
}
