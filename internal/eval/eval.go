package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/state"
)

// #region eval-harness
// EvalHarness checks computed snapshots against the engine's invariants.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates snap. When prev is non-nil it is an earlier or later snapshot of
// the same entity and acquired capability must not decrease going forward in time.
func (h *EvalHarness) Run(snap engine.Snapshot, prev *engine.Snapshot) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Every dimension within its declared range
	out := outOfRange(snap.State)
	check("state_out_of_range", float64(out), out == 0, fmt.Sprintf("%d dimensions out of range", out))

	// 2. Traits within [-1, 1]
	outTraits := 0
	for _, v := range snap.Traits {
		if !state.SignedRange.Contains(v) {
			outTraits++
		}
	}
	check("traits_out_of_range", float64(outTraits), outTraits == 0, fmt.Sprintf("%d traits out of range", outTraits))

	// 3. Cumulative base-shift cap, both the budget and every ledger record
	maxBudget := 0.0
	for _, v := range snap.TraitBudget {
		maxBudget = math.Max(maxBudget, v)
	}
	for _, rec := range snap.Ledger {
		maxBudget = math.Max(maxBudget, rec.CumulativeAfter)
	}
	limit := h.config.TraitCap + h.config.Tolerance
	check("trait_budget_max", maxBudget, maxBudget <= limit,
		fmt.Sprintf("trait budget %.6f exceeds cap %.6f", maxBudget, h.config.TraitCap))

	// 4. Acquired capability never decreases forward in time
	if prev != nil && prev.EntityID == snap.EntityID {
		earlier, later := *prev, snap
		if later.At.Before(earlier.At) {
			earlier, later = later, earlier
		}
		drop := earlier.State[state.AcquiredCapability] - later.State[state.AcquiredCapability]
		check("capability_drop", drop, drop <= h.config.Tolerance,
			fmt.Sprintf("acquired capability fell by %.6f between %s and %s",
				drop, earlier.At.Format("2006-01-02"), later.At.Format("2006-01-02")))
	}

	// 5. State norm: informational only, does not fail
	norm := vectorNorm(snap.State)
	metrics = append(metrics, EvalMetric{Name: "state_norm", Value: norm, Pass: norm <= h.config.MaxNorm})

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func outOfRange(v state.Vector) int {
	n := 0
	for _, d := range state.Dimensions() {
		if !d.Range().Contains(v[d]) {
			n++
		}
	}
	return n
}

// vectorNorm computes the L2 norm of a dimension vector.
func vectorNorm(v state.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// #endregion helpers
