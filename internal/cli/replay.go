package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/replay"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"github.com/spf13/cobra"
)

// #region replay
func newReplayCmd(g *globals) *cobra.Command {
	var (
		fixturePath string
		persisted   bool
		entityID    string
		last        int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute states from recorded inputs and compare",
		Long: `Replay has two modes.

  --fixture  recomputes every checkpoint of a JSON fixture and compares it with
             the expected values.
  --persisted recomputes persisted snapshots from the stored anchor and event
             log and compares digests.

Exit status is 0 when everything matches, 1 on any divergence and 2 when the
inputs cannot be loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (fixturePath == "") == !persisted {
				return exitError{code: 2, err: errors.New("exactly one of --fixture or --persisted is required")}
			}
			cfg, _, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return exitError{code: 2, err: err}
			}
			opts, err := cfg.EngineOptions()
			if err != nil {
				return exitError{code: 2, err: err}
			}
			eng := engine.New(catalog.Default(), opts)

			if fixturePath != "" {
				return runFixtureMode(cmd.OutOrStdout(), eng, fixturePath)
			}
			st, err := store.NewStore(cfg.Database.Path)
			if err != nil {
				return exitError{code: 2, err: fmt.Errorf("open store: %w", err)}
			}
			defer st.Close()
			return runPersistedMode(cmd.OutOrStdout(), st, eng, entityID, last)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON (fixture mode)")
	cmd.Flags().BoolVar(&persisted, "persisted", false, "verify persisted snapshots in the database")
	cmd.Flags().StringVar(&entityID, "entity", "", "limit persisted mode to one entity")
	cmd.Flags().IntVar(&last, "last", 100, "verify the N most recent snapshots")
	return cmd
}

func runFixtureMode(w io.Writer, eng *engine.Engine, path string) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return exitError{code: 2, err: err}
	}
	anchor, events, checkpoints, config, err := f.Resolve()
	if err != nil {
		return exitError{code: 2, err: err}
	}
	results, err := replay.Replay(eng, anchor, events, checkpoints, config)
	if err != nil {
		return exitError{code: 2, err: err}
	}
	return printComparison(w, results)
}

func runPersistedMode(w io.Writer, st *store.Store, eng *engine.Engine, entityID string, last int) error {
	checks, err := replay.VerifyPersisted(st, eng, entityID, last)
	if err != nil {
		return exitError{code: 2, err: err}
	}
	if len(checks) == 0 {
		return exitError{code: 2, err: errors.New("no persisted snapshots found")}
	}

	fmt.Fprintf(w, "%-12s| %-16s| %-20s| %-12s| %-12s| %s\n", "Version", "Entity", "At", "Stored", "Replayed", "Match")
	fmt.Fprintf(w, "%-12s+%-17s+%-21s+%-13s+%-13s+%s\n",
		"------------", "-----------------", "---------------------", "-------------", "-------------", "------")
	diverge := 0
	for _, c := range checks {
		match := "OK"
		if !c.Match {
			match = "DIFF"
			diverge++
		}
		fmt.Fprintf(w, "%-12s| %-16s| %-20s| %-12s| %-12s| %s\n",
			shortID(c.VersionID), c.EntityID, c.At.Format(time.RFC3339), shortID(c.Stored), shortID(c.Replayed), match)
	}
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(checks), len(checks)-diverge, diverge)
	if diverge > 0 {
		return exitError{code: 1}
	}
	return nil
}

// printComparison outputs one row per checkpoint and returns an exitError with
// code 1 when any checkpoint diverged or failed eval.
func printComparison(w io.Writer, results []replay.ReplayResult) error {
	fmt.Fprintf(w, "%-16s| %-20s| %-10s| %s\n", "Checkpoint", "At", "Action", "Detail")
	fmt.Fprintf(w, "%-16s+%-21s+%-11s+%s\n", "----------------", "---------------------", "-----------", "--------")
	for _, r := range results {
		detail := ""
		switch r.Action {
		case "diverge":
			m := r.Mismatches[0]
			detail = fmt.Sprintf("%s expected %.6f got %.6f", m.Name, m.Expected, m.Actual)
			if len(r.Mismatches) > 1 {
				detail += fmt.Sprintf(" (+%d more)", len(r.Mismatches)-1)
			}
		case "eval_fail":
			detail = r.EvalResult.Reason
		}
		fmt.Fprintf(w, "%-16s| %-20s| %-10s| %s\n", r.Label, r.At.Format(time.RFC3339), r.Action, detail)
	}

	s := replay.Summarize(results)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge, %d eval_fail\n",
		s.TotalCheckpoints, s.Matches, s.Diverged, s.EvalFailures)
	if s.Diverged > 0 || s.EvalFailures > 0 {
		return exitError{code: 1}
	}
	return nil
}

// #endregion replay

// #region import
func newImportCmd(g *globals) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a fixture's anchor and events into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}
			rt, err := openRuntime(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			anchor, err := rt.svc.CreateEntity(ctx, f.Anchor)
			if err != nil {
				return err
			}
			for i := range f.Events {
				fe := &f.Events[i]
				ev := fe.ToEvent(anchor.EntityID)
				if _, err := rt.svc.AppendEvent(ctx, anchor.EntityID, inputFromEvent(ev)); err != nil {
					return fmt.Errorf("event %d: %w", i, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s with %d events\n", anchor.EntityID, len(f.Events))
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

func inputFromEvent(ev event.Event) service.EventInput {
	return service.EventInput{
		ID:         ev.ID,
		Type:       ev.Type,
		Custom:     ev.Custom,
		Severity:   ev.Severity,
		Timestamp:  ev.Timestamp,
		BaseShifts: ev.BaseShifts,
	}
}

// #endregion import
