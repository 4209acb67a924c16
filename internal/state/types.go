package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// #region trait
// Trait identifies one of the six HEXACO personality traits.
type Trait int

const (
	HonestyHumility Trait = iota
	Emotionality
	Extraversion
	Agreeableness
	Conscientiousness
	Openness
)

// NumTraits is the size of every TraitVector.
const NumTraits = 6

var traitNames = [NumTraits]string{
	"honesty_humility",
	"emotionality",
	"extraversion",
	"agreeableness",
	"conscientiousness",
	"openness",
}

// Traits returns all traits in index order.
func Traits() []Trait {
	out := make([]Trait, NumTraits)
	for i := range out {
		out[i] = Trait(i)
	}
	return out
}

// ParseTrait resolves a snake_case trait name.
func ParseTrait(name string) (Trait, error) {
	for i, n := range traitNames {
		if n == name {
			return Trait(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trait %q", name)
}

func (t Trait) String() string {
	if !t.Valid() {
		return fmt.Sprintf("trait(%d)", int(t))
	}
	return traitNames[t]
}

// Valid reports whether t is one of the six known traits.
func (t Trait) Valid() bool {
	return t >= 0 && int(t) < NumTraits
}

func (t Trait) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid trait %d", int(t))
	}
	return []byte(traitNames[t]), nil
}

func (t *Trait) UnmarshalText(b []byte) error {
	parsed, err := ParseTrait(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TraitVector holds one value per personality trait.
type TraitVector [NumTraits]float64

// Add returns the element-wise sum.
func (v TraitVector) Add(o TraitVector) TraitVector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Clamp bounds every trait to [-1, 1].
func (v TraitVector) Clamp() TraitVector {
	for i := range v {
		v[i] = SignedRange.Clamp(v[i])
	}
	return v
}

func (v TraitVector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumTraits)
	for i, x := range v {
		m[traitNames[i]] = x
	}
	return json.Marshal(m)
}

func (v *TraitVector) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out TraitVector
	for name, x := range m {
		t, err := ParseTrait(name)
		if err != nil {
			return err
		}
		out[t] = x
	}
	*v = out
	return nil
}

// #endregion trait

// #region direction
// Direction is the query direction relative to the anchor.
type Direction int

const (
	// Forward queries sit at or after the anchor timestamp.
	Forward Direction = iota
	// Backward queries sit strictly before the anchor timestamp.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// #endregion direction

// #region anchor
// Anchor is the fixed reference snapshot from which every query for an entity is computed.
// It is set once when the entity is created and never mutated.
type Anchor struct {
	EntityID  string      `json:"entity_id"`
	Timestamp time.Time   `json:"timestamp"`
	BirthDate time.Time   `json:"birth_date,omitzero"`
	State     Vector      `json:"state"`
	Traits    TraitVector `json:"traits"`

	// TraitBudget is the lifetime base-shift magnitude already consumed per trait
	// by formative events that precede the anchor.
	TraitBudget TraitVector `json:"trait_budget"`
}

// AgeAt returns the entity's age in years at t, or 0 when no birth date is known.
func (a Anchor) AgeAt(t time.Time) float64 {
	if a.BirthDate.IsZero() || t.Before(a.BirthDate) {
		return 0
	}
	return t.Sub(a.BirthDate).Hours() / (24 * 365.25)
}

// DirectionOf classifies a query time relative to the anchor.
func (a Anchor) DirectionOf(at time.Time) Direction {
	if at.Before(a.Timestamp) {
		return Backward
	}
	return Forward
}

// #endregion anchor
