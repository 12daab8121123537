package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/keysweep/internal/store"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or change the persisted cursor",
	}
	cmd.AddCommand(newStateShowCmd(), newStateSetCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the next unassigned counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor := store.NewCursorFile(cfg.StateFile, logger).Load()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State file: %s\n", cfg.StateFile)
			fmt.Fprintf(out, "  Cursor:   %d (%s)\n", cursor, humanize.Comma(int64(cursor)))
			if cfg.ChunkSize > 0 {
				fmt.Fprintf(out, "  Chunks:   %d of %s counters handed out\n",
					cursor/cfg.ChunkSize, humanize.Comma(int64(cfg.ChunkSize)))
			}
			return nil
		},
	}
}

func newStateSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <counter>",
		Short: "Overwrite the persisted cursor",
		Long: "Set overwrites the cursor. Lowering it makes the next run rescan keyspace;\n" +
			"raising it skips keyspace that was never searched.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid counter %q: must be a non-negative integer", args[0])
			}
			cf := store.NewCursorFile(cfg.StateFile, logger)
			prev := cf.Load()
			if err := cf.Save(v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor %d -> %d\n", prev, v)
			return nil
		},
	}
}
