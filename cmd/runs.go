package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"doodleclass/internal/store"
)

func NewRunsCmd(db *sql.DB) *cobra.Command {
	var limit int
	var runID int64

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs and their metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs := store.NewSQLRunStore(db)

			if runID > 0 {
				epochs, err := runs.GetEpochs(runID)
				if err != nil {
					return err
				}
				if len(epochs) == 0 {
					return fmt.Errorf("no metrics recorded for run %d", runID)
				}
				fmt.Printf("Run %d (%d epochs)\n", runID, len(epochs))
				fmt.Printf("%5s %5s %10s %10s %10s %8s %8s\n",
					"epoch", "cycle", "loss", "val_loss", "val_map3", "acc@1", "lr")
				for _, e := range epochs {
					marker := " "
					if e.CheckpointSaved {
						marker = "*"
					}
					fmt.Printf("%5d %5d %10.4f %10.4f %10.4f %7.2f%% %8.5f %s\n",
						e.Epoch, e.Cycle, e.TrainLoss, e.ValLoss, e.ValMAP3, e.ValAcc1*100, e.LR, marker)
				}
				return nil
			}

			list, err := runs.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No training runs recorded yet.")
				return nil
			}
			fmt.Printf("%5s %-8s %-10s %10s  %-19s %s\n", "id", "model", "status", "best_map3", "started", "checkpoint")
			for _, r := range list {
				fmt.Printf("%5d %-8s %-10s %10.4f  %-19s %s\n",
					r.ID, r.Model, r.Status, r.BestMAP3, r.StartedAt.Format("2006-01-02 15:04:05"), r.Checkpoint)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().Int64Var(&runID, "run", 0, "show per-epoch metrics for one run")

	return cmd
}
