package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/keysweep/pkg/model"
)

func newChunksCmd() *cobra.Command {
	var (
		lost   bool
		runID  string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "List dispatched chunks from the ledger",
		Long: "Chunks lists ledger entries in dispatch order. --lost shows only chunks that\n" +
			"may contain unscanned counters (worker failure, spawn failure, interrupt).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedger(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer led.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset, RunID: runID, IncompleteOnly: lost}
			recs, total, err := led.ListChunks(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list chunks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No chunks found.")
				return nil
			}

			fmt.Fprintf(out, "%-6s  %-4s  %-22s  %-22s  %-12s  %-5s  %s\n", "SEQ", "SLOT", "START", "END", "STATE", "EXIT", "RUN")
			fmt.Fprintf(out, "%-6s  %-4s  %-22s  %-22s  %-12s  %-5s  %s\n", "---", "----", "-----", "---", "-----", "----", "---")
			for _, rec := range recs {
				exit := "-"
				if rec.ExitCode != nil {
					exit = fmt.Sprint(*rec.ExitCode)
				}
				fmt.Fprintf(out, "%-6d  %-4d  %-22d  %-22d  %-12s  %-5s  %s\n",
					rec.Seq, rec.Slot, rec.Chunk.Start, rec.Chunk.End, rec.State, exit, rec.RunID)
			}
			if len(recs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(recs), total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&lost, "lost", false, "Only chunks that were lost or interrupted")
	f.StringVar(&runID, "run", "", "Only chunks of this run")
	f.IntVar(&limit, "limit", 50, "Maximum rows")
	f.IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List manager runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedger(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer led.Close()

			runs, err := led.ListRuns(cmd.Context(), model.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-12s  %-22s  %-22s  %s\n", "ID", "OUTCOME", "START CURSOR", "FINAL CURSOR", "STARTED")
			fmt.Fprintf(out, "%-36s  %-12s  %-22s  %-22s  %s\n", "--", "-------", "------------", "------------", "-------")
			for _, run := range runs {
				outcome := string(run.Outcome)
				if outcome == "" {
					outcome = "running"
				}
				final := "-"
				if run.FinalCursor != nil {
					final = fmt.Sprint(*run.FinalCursor)
				}
				fmt.Fprintf(out, "%-36s  %-12s  %-22d  %-22s  %s\n",
					run.ID, outcome, run.StartCursor, final, run.StartedAt.Format("2006-01-02 15:04:05"))
				if run.Payload != "" {
					fmt.Fprintf(out, "    payload: %s\n", run.Payload)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}
