package cli

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"github.com/spf13/cobra"
)

// #region inspect
func newInspectCmd(g *globals) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect anchors, event logs and persisted snapshots",
	}
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")

	withStore := func(cmd *cobra.Command, fn func(io.Writer, *store.Store) error) error {
		cfg, _, err := loadConfig(g, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		st, err := store.NewStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		return fn(cmd.OutOrStdout(), st)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "anchors",
		Short: "List anchored entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(w io.Writer, st *store.Store) error {
				anchors, err := st.ListAnchors()
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(w, anchors)
				}
				fmt.Fprintf(w, "%-16s  %-20s  %-10s  %10s\n", "Entity", "Anchored", "Born", "State Norm")
				fmt.Fprintf(w, "%-16s+-%-20s+-%-10s+-%10s\n", "----------------", "--------------------", "----------", "----------")
				for _, a := range anchors {
					born := "—"
					if !a.BirthDate.IsZero() {
						born = a.BirthDate.Format(time.DateOnly)
					}
					fmt.Fprintf(w, "%-16s  %-20s  %-10s  %10.4f\n", a.EntityID, a.Timestamp.Format(time.RFC3339), born, norm(a.State))
				}
				return nil
			})
		},
	})

	var eventsEntity string
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Show an entity's stored event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(w io.Writer, st *store.Store) error {
				events, err := st.Events(eventsEntity)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(w, events)
				}
				fmt.Fprintf(w, "%-12s  %-20s  %-36s  %8s  %s\n", "Event", "At", "Type", "Severity", "Shifts")
				fmt.Fprintf(w, "%-12s+-%-20s+-%-36s+-%8s+-%s\n", "------------", "--------------------", "------------------------------------", "--------", "------")
				for _, ev := range events {
					fmt.Fprintf(w, "%-12s  %-20s  %-36s  %8.3f  %d\n",
						shortID(ev.ID), ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Severity, len(ev.BaseShifts))
				}
				return nil
			})
		},
	}
	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", "entity id")
	eventsCmd.MarkFlagRequired("entity")
	cmd.AddCommand(eventsCmd)

	var (
		snapEntity string
		last       int
	)
	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List persisted snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(w io.Writer, st *store.Store) error {
				records, err := st.ListSnapshots(snapEntity, last)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(w, records)
				}
				fmt.Fprintf(w, "%-12s  %-12s  %-16s  %-20s  %-8s  %10s  %s\n", "Version", "Parent", "Entity", "At", "Dir", "State Norm", "Digest")
				fmt.Fprintf(w, "%-12s+-%-12s+-%-16s+-%-20s+-%-8s+-%10s+-%s\n",
					"------------", "------------", "----------------", "--------------------", "--------", "----------", "------------")
				for _, r := range records {
					parent := "—"
					if r.ParentID != "" {
						parent = shortID(r.ParentID)
					}
					fmt.Fprintf(w, "%-12s  %-12s  %-16s  %-20s  %-8s  %10.4f  %s\n",
						shortID(r.VersionID), parent, r.Snapshot.EntityID, r.Snapshot.At.Format(time.RFC3339),
						r.Snapshot.Direction, norm(r.Snapshot.State), shortID(r.Digest))
				}
				return nil
			})
		},
	}
	snapshotsCmd.Flags().StringVar(&snapEntity, "entity", "", "limit to one entity")
	snapshotsCmd.Flags().IntVar(&last, "last", 20, "show N most recent snapshots")
	cmd.AddCommand(snapshotsCmd)
	return cmd
}

func norm(v state.Vector) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// #endregion inspect

// #region catalog
func newCatalogCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "catalog [event-type]",
		Short: "List named event types, or show one type's spec",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			tbl := catalog.Default()
			if len(args) == 1 {
				e, ok := tbl.Entry(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", catalog.ErrUnknownEventType, args[0])
				}
				return printJSON(w, e)
			}

			ids := tbl.IDs()
			if jsonOut {
				return printJSON(w, ids)
			}
			for _, id := range ids {
				e, _ := tbl.Entry(id)
				fmt.Fprintf(w, "%-40s %s\n", id, e.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output ids as a JSON array")
	return cmd
}

// #endregion catalog
