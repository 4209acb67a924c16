package develop

import (
	"time"

	"github.com/danielpatrickdp/eventsim/internal/state"
)

// #region request
// Request asks for a permanent shift of one personality trait by a formative event.
type Request struct {
	Trait state.Trait `json:"trait"`
	Raw   float64     `json:"raw"`
	At    time.Time   `json:"at"`
	Age   float64     `json:"age"` // years at the time of the event
}

// Entry pairs a request with the event that carries it, in application order.
type Entry struct {
	EventID string
	Request Request
}

// #endregion request

// #region record
// Record is the realized, post-modifier trait change that lands in the trait ledger.
type Record struct {
	EventID          string      `json:"event_id"`
	Trait            state.Trait `json:"trait"`
	Raw              float64     `json:"raw"`
	Realized         float64     `json:"realized"`
	CumulativeBefore float64     `json:"cumulative_before"`
	CumulativeAfter  float64     `json:"cumulative_after"`
	At               time.Time   `json:"at"`

	// Severe shifts partially recover: they fall linearly to RetainFraction of
	// Realized over RecoveryWindow and stay there.
	Severe         bool          `json:"severe"`
	RetainFraction float64       `json:"retain_fraction"`
	RecoveryWindow time.Duration `json:"recovery_window"`
}

// ContributionAt returns the record's effect on its trait at time t.
func (r Record) ContributionAt(t time.Time) float64 {
	if !r.Severe || r.RecoveryWindow <= 0 {
		return r.Realized
	}
	elapsed := t.Sub(r.At)
	if elapsed <= 0 {
		return r.Realized
	}
	progress := 1.0
	if elapsed < r.RecoveryWindow {
		progress = float64(elapsed) / float64(r.RecoveryWindow)
	}
	return r.Realized * (1 - (1-r.RetainFraction)*progress)
}

// #endregion record

// #region config
// AgePoint is one knot of the piecewise-linear plasticity curve.
type AgePoint struct {
	Age        float64
	Multiplier float64
}

// SensitivePeriod amplifies shifts for ages in [FromAge, ToAge).
type SensitivePeriod struct {
	FromAge    float64
	ToAge      float64
	Multiplier float64
}

// Config holds the constants of the modifier pipeline.
type Config struct {
	MaxRaw          float64 // per-event clamp on raw magnitude
	Cap             float64 // lifetime cumulative magnitude per trait
	SevereThreshold float64 // |realized| above this partially recovers
	RetainFraction  float64 // share of a severe shift that is kept
	RecoveryWindow  time.Duration

	// Plasticity knots in ascending age order. Ages below the first knot use its
	// multiplier, ages above the last use the last.
	Plasticity []AgePoint

	Stability [state.NumTraits]float64
	Sensitive [state.NumTraits]SensitivePeriod
}

// DefaultConfig returns the calibrated pipeline constants.
func DefaultConfig() Config {
	var stability [state.NumTraits]float64
	stability[state.HonestyHumility] = 0.80
	stability[state.Emotionality] = 0.65
	stability[state.Extraversion] = 0.80
	stability[state.Agreeableness] = 0.75
	stability[state.Conscientiousness] = 0.70
	stability[state.Openness] = 0.85

	var sensitive [state.NumTraits]SensitivePeriod
	sensitive[state.HonestyHumility] = SensitivePeriod{FromAge: 16, ToAge: 28, Multiplier: 1.2}
	sensitive[state.Emotionality] = SensitivePeriod{FromAge: 12, ToAge: 25, Multiplier: 1.25}
	sensitive[state.Extraversion] = SensitivePeriod{FromAge: 12, ToAge: 20, Multiplier: 1.2}
	sensitive[state.Agreeableness] = SensitivePeriod{FromAge: 18, ToAge: 30, Multiplier: 1.2}
	sensitive[state.Conscientiousness] = SensitivePeriod{FromAge: 20, ToAge: 35, Multiplier: 1.2}
	sensitive[state.Openness] = SensitivePeriod{FromAge: 12, ToAge: 22, Multiplier: 1.3}

	return Config{
		MaxRaw:          0.30,
		Cap:             1.0,
		SevereThreshold: 0.20,
		RetainFraction:  0.70,
		RecoveryWindow:  180 * 24 * time.Hour,
		Plasticity: []AgePoint{
			{Age: 18, Multiplier: 1.3},
			{Age: 30, Multiplier: 1.0},
			{Age: 50, Multiplier: 0.8},
			{Age: 70, Multiplier: 0.6},
		},
		Stability: stability,
		Sensitive: sensitive,
	}
}

// #endregion config
