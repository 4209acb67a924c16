// Package develop turns formative-event trait shift requests into bounded,
// permanent personality changes.
package develop

import (
	"math"

	"github.com/danielpatrickdp/eventsim/internal/state"
)

// solveIterations bounds the bisection in SolveStart.
const solveIterations = 64

// #region pipeline
// Pipeline applies the ordered modifier chain to raw trait shifts.
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a pipeline with the given constants.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Config returns the pipeline constants.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Result is the outcome of modifying one raw shift.
type Result struct {
	Realized        float64
	CumulativeAfter float64
	Severe          bool
}

// Modify runs the modifier chain in order: clamp, age plasticity, trait stability,
// sensitive period, diminishing returns with a hard cumulative cap, severity tag.
func (p *Pipeline) Modify(raw float64, trait state.Trait, age, cumulative float64) Result {
	m := clamp(raw, -p.cfg.MaxRaw, p.cfg.MaxRaw)

	m *= p.Plasticity(age)

	if s := p.cfg.Stability[trait]; s > 0 {
		m /= s
	}

	if sp := p.cfg.Sensitive[trait]; sp.Multiplier > 0 && age >= sp.FromAge && age < sp.ToAge {
		m *= sp.Multiplier
	}

	used := clamp(cumulative, 0, p.cfg.Cap)
	remaining := p.cfg.Cap - used
	if p.cfg.Cap > 0 {
		m *= remaining / p.cfg.Cap
	} else {
		m = 0
	}
	if math.Abs(m) > remaining {
		m = math.Copysign(remaining, m)
	}

	return Result{
		Realized:        m,
		CumulativeAfter: used + math.Abs(m),
		Severe:          math.Abs(m) > p.cfg.SevereThreshold,
	}
}

// Plasticity returns the age multiplier, interpolating linearly between knots.
func (p *Pipeline) Plasticity(age float64) float64 {
	knots := p.cfg.Plasticity
	if len(knots) == 0 {
		return 1
	}
	if age <= knots[0].Age {
		return knots[0].Multiplier
	}
	for i := 1; i < len(knots); i++ {
		lo, hi := knots[i-1], knots[i]
		if age <= hi.Age {
			t := (age - lo.Age) / (hi.Age - lo.Age)
			return lo.Multiplier + t*(hi.Multiplier-lo.Multiplier)
		}
	}
	return knots[len(knots)-1].Multiplier
}

// #endregion pipeline

// #region fold
// Fold applies entries in order starting from budget, the per-trait cumulative
// magnitude already consumed. It returns the ledger records and the final budget.
func (p *Pipeline) Fold(entries []Entry, budget state.TraitVector) ([]Record, state.TraitVector) {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		req := e.Request
		if !req.Trait.Valid() {
			continue
		}
		before := budget[req.Trait]
		res := p.Modify(req.Raw, req.Trait, req.Age, before)
		budget[req.Trait] = res.CumulativeAfter

		rec := Record{
			EventID:          e.EventID,
			Trait:            req.Trait,
			Raw:              req.Raw,
			Realized:         res.Realized,
			CumulativeBefore: before,
			CumulativeAfter:  res.CumulativeAfter,
			At:               req.At,
			Severe:           res.Severe,
			RetainFraction:   1,
		}
		if res.Severe {
			rec.RetainFraction = p.cfg.RetainFraction
			rec.RecoveryWindow = p.cfg.RecoveryWindow
		}
		records = append(records, rec)
	}
	return records, budget
}

// SolveStart finds, per trait, the starting budget from which folding entries ends
// at end. The fold is monotone in its starting budget, so bisection converges.
// Traits whose entries cannot reach end even from zero start at zero.
func (p *Pipeline) SolveStart(entries []Entry, end state.TraitVector) state.TraitVector {
	var start state.TraitVector
	for _, t := range state.Traits() {
		var own []Entry
		for _, e := range entries {
			if e.Request.Trait == t {
				own = append(own, e)
			}
		}
		target := clamp(end[t], 0, p.cfg.Cap)
		if len(own) == 0 {
			start[t] = target
			continue
		}

		reach := func(c float64) float64 {
			var b state.TraitVector
			b[t] = c
			_, out := p.Fold(own, b)
			return out[t]
		}
		if reach(0) >= target {
			start[t] = 0
			continue
		}
		lo, hi := 0.0, target
		for i := 0; i < solveIterations; i++ {
			mid := lo + (hi-lo)/2
			if reach(mid) < target {
				lo = mid
			} else {
				hi = mid
			}
		}
		start[t] = hi
	}
	return start
}

// #endregion fold

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
