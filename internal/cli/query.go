package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/rpc"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/spf13/cobra"
)

func newQueryCmd(g *globals) *cobra.Command {
	var (
		entityID string
		atFlag   string
		save     bool
		remote   string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compute an entity's state at an instant",
		Example: `  eventsim query --entity ent-1 --at 2024-06-01T00:00:00Z
  eventsim query --entity ent-1 --remote localhost:9090 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if atFlag != "" {
				t, err := time.Parse(time.RFC3339Nano, atFlag)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				at = t
			}

			var res service.StateResult
			if remote != "" {
				c, err := rpc.NewClient(remote)
				if err != nil {
					return err
				}
				defer c.Close()
				if res, err = c.StateAt(cmd.Context(), entityID, at, save); err != nil {
					return err
				}
			} else {
				rt, err := openRuntime(g, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer rt.Close()
				if res, err = rt.svc.StateAt(cmd.Context(), entityID, at, service.QueryOptions{Save: save, Source: "cli"}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, res)
			}
			printState(out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id")
	cmd.Flags().StringVar(&atFlag, "at", "", "query instant, RFC3339 (default now)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the snapshot")
	cmd.Flags().StringVar(&remote, "remote", "", "query a running server over gRPC at this address")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	cmd.MarkFlagRequired("entity")
	return cmd
}

// #region output
func printState(w io.Writer, res service.StateResult) {
	snap := res.Snapshot
	fmt.Fprintf(w, "Entity:    %s\n", snap.EntityID)
	fmt.Fprintf(w, "At:        %s (%s of anchor %s)\n", snap.At.Format(time.RFC3339), snap.Direction, snap.AnchorAt.Format(time.RFC3339))
	fmt.Fprintf(w, "In scope:  %d events\n", len(snap.InScope))
	fmt.Fprintf(w, "Digest:    %s\n", shortID(res.Digest))
	if res.VersionID != "" {
		fmt.Fprintf(w, "Version:   %s\n", res.VersionID)
	}

	fmt.Fprintf(w, "\n%-28s %10s\n", "Dimension", "Value")
	fmt.Fprintf(w, "%-28s+%10s\n", "----------------------------", "----------")
	for _, d := range state.Dimensions() {
		fmt.Fprintf(w, "%-28s %10.4f\n", d, snap.State[d])
	}

	fmt.Fprintf(w, "\n%-28s %10s %10s\n", "Trait", "Value", "Budget")
	fmt.Fprintf(w, "%-28s+%10s+%10s\n", "----------------------------", "----------", "----------")
	for _, tr := range state.Traits() {
		fmt.Fprintf(w, "%-28s %10.4f %10.4f\n", tr, snap.Traits[tr], snap.TraitBudget[tr])
	}

	r := res.Risk
	fmt.Fprintf(w, "\nRisk: TB=%.3f PB=%.3f AC=%.3f elevated=%d convergent=%v",
		r.Factors.TB, r.Factors.PB, r.Factors.AC, r.ElevatedCount, r.Convergent)
	if r.Highest != nil {
		fmt.Fprintf(w, " highest=%s", r.Highest.Code())
	}
	fmt.Fprintln(w)

	if !res.Eval.Passed {
		fmt.Fprintf(w, "Eval: %s\n", res.Eval.Reason)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
