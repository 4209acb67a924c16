package state

import (
	"encoding/json"
	"fmt"
)

// #region dimension
// Dimension identifies one of the 22 fixed psychological axes tracked per entity.
type Dimension int

const (
	// Mood (PAD)
	Valence Dimension = iota
	Arousal
	Dominance

	// Needs
	Fatigue
	Stress
	Purpose

	// Social cognition
	Loneliness
	PerceivedReciprocalCaring
	PerceivedLiability
	SelfHate
	PerceivedCompetence

	// Mental health
	Depression
	SelfWorth
	Hopelessness
	InterpersonalHopelessness
	AcquiredCapability

	// Disposition
	ImpulseControl
	Empathy
	Aggression
	Grievance
	Reactance
	TrustPropensity
)

// NumDimensions is the size of every Vector.
const NumDimensions = 22

var dimensionNames = [NumDimensions]string{
	"valence",
	"arousal",
	"dominance",
	"fatigue",
	"stress",
	"purpose",
	"loneliness",
	"prc",
	"perceived_liability",
	"self_hate",
	"perceived_competence",
	"depression",
	"self_worth",
	"hopelessness",
	"interpersonal_hopelessness",
	"acquired_capability",
	"impulse_control",
	"empathy",
	"aggression",
	"grievance",
	"reactance",
	"trust_propensity",
}

var dimensionByName = func() map[string]Dimension {
	m := make(map[string]Dimension, NumDimensions)
	for i, n := range dimensionNames {
		m[n] = Dimension(i)
	}
	return m
}()

// Dimensions returns all dimensions in index order.
func Dimensions() []Dimension {
	out := make([]Dimension, NumDimensions)
	for i := range out {
		out[i] = Dimension(i)
	}
	return out
}

// ParseDimension resolves a snake_case dimension name.
func ParseDimension(name string) (Dimension, error) {
	d, ok := dimensionByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown dimension %q", name)
	}
	return d, nil
}

func (d Dimension) String() string {
	if !d.Valid() {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// Valid reports whether d is one of the 22 known dimensions.
func (d Dimension) Valid() bool {
	return d >= 0 && int(d) < NumDimensions
}

func (d Dimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dimension %d", int(d))
	}
	return []byte(dimensionNames[d]), nil
}

func (d *Dimension) UnmarshalText(b []byte) error {
	parsed, err := ParseDimension(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// #endregion dimension

// #region range
// Range is the closed interval a dimension or trait value is bounded to.
type Range struct {
	Min float64
	Max float64
}

var (
	// SignedRange bounds general dimensions and personality traits.
	SignedRange = Range{Min: -1, Max: 1}
	// UnitRange bounds acquired capability.
	UnitRange = Range{Min: 0, Max: 1}
)

// Clamp bounds v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Range returns the valid numeric range for the dimension.
func (d Dimension) Range() Range {
	if d == AcquiredCapability {
		return UnitRange
	}
	return SignedRange
}

// #endregion range

// #region vector
// Vector holds one value per dimension, indexed by Dimension.
type Vector [NumDimensions]float64

// Get returns the value for d.
func (v Vector) Get(d Dimension) float64 { return v[d] }

// Set assigns the value for d.
func (v *Vector) Set(d Dimension, x float64) { v[d] = x }

// Add returns the element-wise sum v + o.
func (v Vector) Add(o Vector) Vector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Sub returns the element-wise difference v - o.
func (v Vector) Sub(o Vector) Vector {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

// Scale returns v multiplied by s.
func (v Vector) Scale(s float64) Vector {
	for i := range v {
		v[i] *= s
	}
	return v
}

// Clamp bounds every dimension to its declared range.
func (v Vector) Clamp() Vector {
	for i := range v {
		v[i] = Dimension(i).Range().Clamp(v[i])
	}
	return v
}

// InRange reports whether every dimension lies within its declared range.
func (v Vector) InRange() bool {
	for i, x := range v {
		if !Dimension(i).Range().Contains(x) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the vector as a name → value object.
func (v Vector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumDimensions)
	for i, x := range v {
		m[dimensionNames[i]] = x
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a name → value object. Missing dimensions default to zero.
func (v *Vector) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Vector
	for name, x := range m {
		d, err := ParseDimension(name)
		if err != nil {
			return err
		}
		out[d] = x
	}
	*v = out
	return nil
}

// #endregion vector
