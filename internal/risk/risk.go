// Package risk derives the three-factor convergence classification from a
// computed snapshot: thwarted belongingness (TB), perceived burdensomeness (PB)
// and acquired capability (AC). It only reads already-composited dimensions.
package risk

import (
	"fmt"

	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/state"
)

// Elevation thresholds. A factor at or above its threshold is elevated.
const (
	TBThreshold = 0.5
	PBThreshold = 0.5
	ACThreshold = 0.3
)

// #region factor
// Factor is one of the three proximal factors.
type Factor int

const (
	ThwartedBelongingness Factor = iota
	PerceivedBurdensomeness
	AcquiredCapability
)

// Code returns the short code.
func (f Factor) Code() string {
	switch f {
	case ThwartedBelongingness:
		return "TB"
	case PerceivedBurdensomeness:
		return "PB"
	case AcquiredCapability:
		return "AC"
	}
	return "?"
}

func (f Factor) String() string {
	switch f {
	case ThwartedBelongingness:
		return "thwarted_belongingness"
	case PerceivedBurdensomeness:
		return "perceived_burdensomeness"
	case AcquiredCapability:
		return "acquired_capability"
	}
	return "unknown"
}

func (f Factor) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Factor) UnmarshalText(b []byte) error {
	for _, c := range []Factor{ThwartedBelongingness, PerceivedBurdensomeness, AcquiredCapability} {
		if string(b) == c.String() || string(b) == c.Code() {
			*f = c
			return nil
		}
	}
	return fmt.Errorf("unknown risk factor %q", b)
}

// #endregion factor

// #region factors
// Factors are the aggregate factor values, each in [0, 1].
type Factors struct {
	TB float64 `json:"tb"`
	PB float64 `json:"pb"`
	AC float64 `json:"ac"`
}

// FromState computes the factors from a dimension vector.
//
//	TB = clamp01((loneliness - prc) / 2)
//	PB = clamp01((perceived_liability + self_hate) / 2)
//	AC = acquired_capability
func FromState(v state.Vector) Factors {
	return Factors{
		TB: clamp01((v[state.Loneliness] - v[state.PerceivedReciprocalCaring]) / 2),
		PB: clamp01((v[state.PerceivedLiability] + v[state.SelfHate]) / 2),
		AC: clamp01(v[state.AcquiredCapability]),
	}
}

// #endregion factors

// #region status
// Status records which factors are elevated and whether they converge.
type Status struct {
	Factors       Factors `json:"factors"`
	TBElevated    bool    `json:"tb_elevated"`
	PBElevated    bool    `json:"pb_elevated"`
	ACElevated    bool    `json:"ac_elevated"`
	ElevatedCount int     `json:"elevated_count"`
	Convergent    bool    `json:"three_factor_convergent"`

	// Highest is the elevated factor furthest above its threshold; nil when none
	// is elevated. Ties go to TB, then PB.
	Highest *Factor `json:"highest,omitempty"`
}

// Classify evaluates factor values against the thresholds.
func Classify(f Factors) Status {
	s := Status{
		Factors:    f,
		TBElevated: f.TB >= TBThreshold,
		PBElevated: f.PB >= PBThreshold,
		ACElevated: f.AC >= ACThreshold,
	}
	for _, e := range []bool{s.TBElevated, s.PBElevated, s.ACElevated} {
		if e {
			s.ElevatedCount++
		}
	}
	s.Convergent = s.ElevatedCount == 3

	tb := excess(s.TBElevated, f.TB, TBThreshold)
	pb := excess(s.PBElevated, f.PB, PBThreshold)
	ac := excess(s.ACElevated, f.AC, ACThreshold)
	var h Factor
	switch {
	case s.TBElevated && tb >= pb && tb >= ac:
		h = ThwartedBelongingness
	case s.PBElevated && pb >= tb && pb >= ac:
		h = PerceivedBurdensomeness
	case s.ACElevated:
		h = AcquiredCapability
	default:
		return s
	}
	s.Highest = &h
	return s
}

// Assess classifies a computed snapshot.
func Assess(snap engine.Snapshot) Status {
	return Classify(FromState(snap.State))
}

// HasDesire reports TB and PB both elevated.
func (s Status) HasDesire() bool {
	return s.TBElevated && s.PBElevated
}

// DormantCapability reports capability elevated without desire.
func (s Status) DormantCapability() bool {
	return s.ACElevated && !s.HasDesire()
}

// DesireWithoutCapability reports desire present while capability is not.
func (s Status) DesireWithoutCapability() bool {
	return s.HasDesire() && !s.ACElevated
}

// Elevated lists the elevated factors in TB, PB, AC order.
func (s Status) Elevated() []Factor {
	var out []Factor
	if s.TBElevated {
		out = append(out, ThwartedBelongingness)
	}
	if s.PBElevated {
		out = append(out, PerceivedBurdensomeness)
	}
	if s.ACElevated {
		out = append(out, AcquiredCapability)
	}
	return out
}

// #endregion status

func excess(elevated bool, v, threshold float64) float64 {
	if !elevated {
		return -1
	}
	return v - threshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
