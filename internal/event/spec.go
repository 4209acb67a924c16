package event

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/danielpatrickdp/eventsim/internal/state"
)

// #region spec-types
// ChronicFlags routes the temporary part of each dimension to the chronic (slow)
// bucket when true. The acquired_capability slot is never read.
type ChronicFlags [state.NumDimensions]bool

// Permanence is the fraction of each dimension's impact that never decays.
// The acquired_capability slot is never read; capability is always fully permanent.
type Permanence [state.NumDimensions]float64

// Spec is the full per-dimension description of one kind of event.
type Spec struct {
	Impact     state.Vector
	Chronic    ChronicFlags
	Permanence Permanence
}

// AppliedDeltas is a Spec split at one severity into three disjoint contributions.
type AppliedDeltas struct {
	Permanent state.Vector `json:"permanent"`
	Acute     state.Vector `json:"acute"`
	Chronic   state.Vector `json:"chronic"`
}

// #endregion spec-types

// #region apply
// Apply scales the spec by severity and splits every dimension into permanent,
// acute and chronic parts. Severity and permanence are clamped to [0, 1].
// Acquired capability is entirely permanent and never negative.
func (s Spec) Apply(severity float64) AppliedDeltas {
	sev := clampUnit(severity)
	var out AppliedDeltas

	for _, d := range state.Dimensions() {
		scaled := s.Impact[d] * sev

		if d == state.AcquiredCapability {
			out.Permanent[d] = math.Max(scaled, 0)
			continue
		}

		p := clampUnit(s.Permanence[d])
		out.Permanent[d] = scaled * p
		temporary := scaled * (1 - p)
		if s.Chronic[d] {
			out.Chronic[d] = temporary
		} else {
			out.Acute[d] = temporary
		}
	}
	return out
}

// Total returns permanent + acute + chronic, the undecayed effect of the event.
func (a AppliedDeltas) Total() state.Vector {
	return a.Permanent.Add(a.Acute).Add(a.Chronic)
}

// #endregion apply

// #region spec-encoding
type specJSON struct {
	Impact     map[string]float64 `json:"impact" yaml:"impact"`
	Chronic    map[string]bool    `json:"chronic" yaml:"chronic"`
	Permanence map[string]float64 `json:"permanence" yaml:"permanence"`
}

// SpecFromMaps builds a Spec from name-keyed maps. Missing dimensions default to
// zero / false. Naming acquired_capability in chronic or permanence is an error.
func SpecFromMaps(impact map[string]float64, chronic map[string]bool, permanence map[string]float64) (Spec, error) {
	var s Spec
	for name, v := range impact {
		d, err := state.ParseDimension(name)
		if err != nil {
			return Spec{}, fmt.Errorf("impact: %w", err)
		}
		s.Impact[d] = v
	}
	for name, v := range chronic {
		d, err := parseMaskedDimension(name)
		if err != nil {
			return Spec{}, fmt.Errorf("chronic: %w", err)
		}
		s.Chronic[d] = v
	}
	for name, v := range permanence {
		d, err := parseMaskedDimension(name)
		if err != nil {
			return Spec{}, fmt.Errorf("permanence: %w", err)
		}
		s.Permanence[d] = v
	}
	return s, nil
}

// Maps returns the name-keyed form of the spec, omitting the capability slots
// that do not exist for chronic and permanence.
func (s Spec) Maps() (impact map[string]float64, chronic map[string]bool, permanence map[string]float64) {
	impact = make(map[string]float64, state.NumDimensions)
	chronic = make(map[string]bool, state.NumDimensions-1)
	permanence = make(map[string]float64, state.NumDimensions-1)
	for _, d := range state.Dimensions() {
		impact[d.String()] = s.Impact[d]
		if d == state.AcquiredCapability {
			continue
		}
		chronic[d.String()] = s.Chronic[d]
		permanence[d.String()] = s.Permanence[d]
	}
	return impact, chronic, permanence
}

func (s Spec) MarshalJSON() ([]byte, error) {
	impact, chronic, permanence := s.Maps()
	return json.Marshal(specJSON{Impact: impact, Chronic: chronic, Permanence: permanence})
}

func (s *Spec) UnmarshalJSON(b []byte) error {
	var raw specJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := SpecFromMaps(raw.Impact, raw.Chronic, raw.Permanence)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func parseMaskedDimension(name string) (state.Dimension, error) {
	d, err := state.ParseDimension(name)
	if err != nil {
		return 0, err
	}
	if d == state.AcquiredCapability {
		return 0, fmt.Errorf("%s is always permanent and has no entry here", name)
	}
	return d, nil
}

// #endregion spec-encoding

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
