// Package decay computes how much of a temporary delta remains after elapsed time.
//
// The law is exponential half-life decay, residual = delta * 2^(-elapsed/h).
// Acute deltas use the dimension's acute half-life; chronic deltas use the same
// half-life stretched by ChronicFactor (4 by default). Half-lives are calibration
// parameters and can be overridden from config.
package decay

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/state"
)

const (
	day  = 24 * time.Hour
	week = 7 * day

	// DefaultChronicFactor stretches acute half-lives for chronic deltas.
	DefaultChronicFactor = 4.0

	// DefaultHalfLife applies to dimensions without a specific calibration.
	DefaultHalfLife = week
)

// #region curve
// Curve is a half-life decay law for a single dimension.
type Curve struct {
	HalfLife      time.Duration
	ChronicFactor float64
}

// Residual returns what remains of delta after elapsed time. Non-positive elapsed
// returns delta unchanged. A zero half-life means the delta never decays.
func (c Curve) Residual(delta float64, elapsed time.Duration, chronic bool) float64 {
	if delta == 0 || elapsed <= 0 || c.HalfLife <= 0 {
		return delta
	}
	h := float64(c.HalfLife)
	if chronic {
		h *= c.ChronicFactor
	}
	return delta * math.Exp2(-float64(elapsed)/h)
}

// #endregion curve

// #region model
// Model holds one curve per dimension.
type Model struct {
	curves [state.NumDimensions]Curve
}

// DefaultHalfLives returns the acute half-life calibration per dimension.
// Acquired capability is zero: it only ever carries permanent deltas.
func DefaultHalfLives() [state.NumDimensions]time.Duration {
	var hl [state.NumDimensions]time.Duration
	for i := range hl {
		hl[i] = DefaultHalfLife
	}
	hl[state.Valence] = 6 * time.Hour
	hl[state.Arousal] = 6 * time.Hour
	hl[state.Dominance] = 6 * time.Hour
	hl[state.Fatigue] = 8 * time.Hour
	hl[state.Stress] = 12 * time.Hour
	hl[state.Purpose] = 3 * day
	hl[state.Loneliness] = day
	hl[state.PerceivedReciprocalCaring] = 2 * day
	hl[state.PerceivedLiability] = 3 * day
	hl[state.SelfHate] = 3 * day
	hl[state.Depression] = 2 * week
	hl[state.InterpersonalHopelessness] = 2 * week
	hl[state.AcquiredCapability] = 0
	hl[state.Empathy] = 4 * week
	hl[state.Aggression] = week
	hl[state.Grievance] = week
	return hl
}

// NewModel builds a model from per-dimension acute half-lives. Every dimension
// needs a positive half-life except acquired capability, which has none.
func NewModel(halfLives [state.NumDimensions]time.Duration, chronicFactor float64) (*Model, error) {
	if chronicFactor < 1 {
		return nil, fmt.Errorf("chronic factor %.2f must be >= 1", chronicFactor)
	}
	m := &Model{}
	for i, h := range halfLives {
		d := state.Dimension(i)
		if d == state.AcquiredCapability {
			if h != 0 {
				return nil, fmt.Errorf("%s does not decay", d)
			}
		} else if h <= 0 {
			return nil, fmt.Errorf("half-life for %s must be positive, got %s", d, h)
		}
		m.curves[i] = Curve{HalfLife: h, ChronicFactor: chronicFactor}
	}
	return m, nil
}

// DefaultModel returns the model built from DefaultHalfLives and DefaultChronicFactor.
func DefaultModel() *Model {
	m, _ := NewModel(DefaultHalfLives(), DefaultChronicFactor)
	return m
}

// Curve returns the curve for d.
func (m *Model) Curve(d state.Dimension) Curve {
	return m.curves[d]
}

// Residual decays a single delta on dimension d.
func (m *Model) Residual(d state.Dimension, delta float64, elapsed time.Duration, chronic bool) float64 {
	return m.curves[d].Residual(delta, elapsed, chronic)
}

// Decay applies acute and chronic decay to whole vectors and returns their sum.
func (m *Model) Decay(acute, chronic state.Vector, elapsed time.Duration) state.Vector {
	var out state.Vector
	for i := range out {
		d := state.Dimension(i)
		out[i] = m.Residual(d, acute[i], elapsed, false) + m.Residual(d, chronic[i], elapsed, true)
	}
	return out
}

// #endregion model
