// Package replay recomputes entity state from recorded inputs and compares it with
// expected or persisted results.
package replay

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/eval"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/store"
)

// #region types
// Checkpoint is an instant with expected values. InScope < 0 skips the scope check.
type Checkpoint struct {
	Label   string
	At      time.Time
	State   map[state.Dimension]float64
	Traits  map[state.Trait]float64
	InScope int
}

// ReplayConfig bundles comparison and eval settings for a replay run.
type ReplayConfig struct {
	Tolerance  float64
	EvalConfig eval.EvalConfig
}

// Mismatch is one compared value outside tolerance.
type Mismatch struct {
	Name     string  `json:"name"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

// ReplayResult captures the outcome of one checkpoint.
type ReplayResult struct {
	Label      string
	At         time.Time
	Action     string // "match" | "diverge" | "eval_fail"
	Snapshot   engine.Snapshot
	Mismatches []Mismatch
	EvalResult eval.EvalResult
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCheckpoints int
	Matches          int
	Diverged         int
	EvalFailures     int
	FinalSnapshot    *engine.Snapshot
}

// #endregion types

// #region replay
// Replay computes the state at every checkpoint, in time order, and compares it
// with the expected values. Each snapshot is also checked by the eval harness
// against the previous checkpoint's snapshot.
func Replay(eng *engine.Engine, anchor state.Anchor, events []event.Event, checkpoints []Checkpoint, config ReplayConfig) ([]ReplayResult, error) {
	evalInst := eval.NewEvalHarness(config.EvalConfig)
	results := make([]ReplayResult, 0, len(checkpoints))

	var prev *engine.Snapshot
	for _, cp := range checkpoints {
		snap, err := eng.StateAt(&anchor, events, cp.At)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.Label, err)
		}

		r := ReplayResult{Label: cp.Label, At: cp.At, Snapshot: snap, Action: "match"}
		for _, d := range state.Dimensions() {
			if want, ok := cp.State[d]; ok && !within(want, snap.State[d], config.Tolerance) {
				r.Mismatches = append(r.Mismatches, Mismatch{Name: d.String(), Expected: want, Actual: snap.State[d]})
			}
		}
		for _, tr := range state.Traits() {
			if want, ok := cp.Traits[tr]; ok && !within(want, snap.Traits[tr], config.Tolerance) {
				r.Mismatches = append(r.Mismatches, Mismatch{Name: tr.String(), Expected: want, Actual: snap.Traits[tr]})
			}
		}
		if cp.InScope >= 0 && cp.InScope != len(snap.InScope) {
			r.Mismatches = append(r.Mismatches, Mismatch{
				Name: "in_scope", Expected: float64(cp.InScope), Actual: float64(len(snap.InScope)),
			})
		}

		r.EvalResult = evalInst.Run(snap, prev)
		switch {
		case len(r.Mismatches) > 0:
			r.Action = "diverge"
		case !r.EvalResult.Passed:
			r.Action = "eval_fail"
		}

		results = append(results, r)
		s := snap
		prev = &s
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalCheckpoints: len(results)}
	for _, r := range results {
		switch r.Action {
		case "match":
			s.Matches++
		case "diverge":
			s.Diverged++
		case "eval_fail":
			s.EvalFailures++
		}
	}
	if len(results) > 0 {
		final := results[len(results)-1].Snapshot
		s.FinalSnapshot = &final
	}
	return s
}

// #endregion replay

// #region verify-persisted
// Verification compares one persisted snapshot with its recomputation.
type Verification struct {
	VersionID string
	EntityID  string
	At        time.Time
	Stored    string
	Replayed  string
	Match     bool
}

// VerifyPersisted recomputes up to limit persisted snapshots of entityID (all
// entities when empty) from the stored anchor and event log, and compares digests.
func VerifyPersisted(st *store.Store, eng *engine.Engine, entityID string, limit int) ([]Verification, error) {
	records, err := st.ListSnapshots(entityID, limit)
	if err != nil {
		return nil, err
	}

	type source struct {
		anchor state.Anchor
		events []event.Event
	}
	sources := make(map[string]source)

	out := make([]Verification, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		id := rec.Snapshot.EntityID
		src, ok := sources[id]
		if !ok {
			if src.anchor, err = st.GetAnchor(id); err != nil {
				return nil, err
			}
			if src.events, err = st.Events(id); err != nil {
				return nil, err
			}
			sources[id] = src
		}

		snap, err := eng.StateAt(&src.anchor, src.events, rec.Snapshot.At)
		if err != nil {
			return nil, fmt.Errorf("recompute %s: %w", rec.VersionID, err)
		}
		replayed := snap.Digest()
		out = append(out, Verification{
			VersionID: rec.VersionID,
			EntityID:  id,
			At:        rec.Snapshot.At,
			Stored:    rec.Digest,
			Replayed:  replayed,
			Match:     replayed == rec.Digest,
		})
	}
	return out, nil
}

// #endregion verify-persisted

func within(want, got, tol float64) bool {
	return math.Abs(want-got) <= tol
}
