package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/crucible/internal/catalog"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	snapshotOutputFormat string
	snapshotSince        string
	snapshotUntil        string
	snapshotName         string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect saved workspaces",
	Long: `Inspect and delete named workspace snapshots.

Snapshots are saved and loaded from a running workspace (crucible serve).
Commands taking an ID accept a short prefix of at least 6 characters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Long: `List snapshots, newest first.

Time Filters:
  --since  - Saved after this time (duration like 2h, days like 7d, or RFC3339)
  --until  - Saved before this time

Examples:
  crucible snapshot list --since 7d
  crucible snapshot list --name 'volcano*' -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runSnapshotList,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <ID>",
	Short: "Print one snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <ID>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

func init() {
	snapshotListCmd.Flags().StringVarP(&snapshotOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	snapshotListCmd.Flags().StringVar(&snapshotSince, "since", "", "Show snapshots saved after time (duration or RFC3339)")
	snapshotListCmd.Flags().StringVar(&snapshotUntil, "until", "", "Show snapshots saved before time (duration or RFC3339)")
	snapshotListCmd.Flags().StringVar(&snapshotName, "name", "", "Filter by name (glob pattern)")

	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(snapshotOutputFormat)
	if err != nil {
		return err
	}

	sinceMs, untilMs, err := timespec.ParseRange(snapshotSince, snapshotUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration (2h, 30m), days (7d) or RFC3339 (2025-10-29T13:00:00Z)"},
		)
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, err := a.snapshots.List(ctx, snapshot.Criteria{SinceMs: sinceMs, UntilMs: untilMs, NameGlob: snapshotName})
	if err != nil {
		return printer.ErrorWithContext("failed to list snapshots", err.Error(), map[string]string{"Namespace": a.namespace()}, nil)
	}
	return catalog.FormatSnapshots(cmd.OutOrStdout(), snaps, format)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveSnapshotID(ctx, a.snapshots, args[0])
	if err != nil {
		return err
	}
	snap, err := a.snapshots.Get(ctx, id)
	if err != nil {
		return snapshotError(args[0], err)
	}
	return catalog.FormatSingleJSON(cmd.OutOrStdout(), snap)
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveSnapshotID(ctx, a.snapshots, args[0])
	if err != nil {
		return err
	}
	if err := a.snapshots.Delete(ctx, id); err != nil {
		return snapshotError(args[0], err)
	}
	printer.Success("Deleted snapshot %s\n", id)
	return nil
}

func resolveSnapshotID(ctx context.Context, m *snapshot.Manager, shortID string) (string, error) {
	id, err := m.Resolve(ctx, shortID)
	if err != nil {
		return "", snapshotError(shortID, err)
	}
	return id, nil
}

// snapshotError turns short ID resolution failures into formatted errors.
func snapshotError(shortID string, err error) error {
	if snapshot.IsNotFoundError(err) {
		return printer.Error(
			fmt.Sprintf("snapshot not found: %s", shortID),
			"No snapshot matches that ID.",
			[]string{"List snapshots:\n  crucible snapshot list"},
		)
	}
	var ambiguous *snapshot.AmbiguousError
	if errors.As(err, &ambiguous) {
		return printer.Error(
			"ambiguous snapshot ID",
			snapshot.FormatAmbiguousError(ambiguous),
			nil,
		)
	}
	return printer.Error("invalid snapshot ID", err.Error(), nil)
}
