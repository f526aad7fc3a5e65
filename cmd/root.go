package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"

	"doodleclass/internal/logger"
)

func NewRootCmd(db *sql.DB) *cobra.Command {
	var logLevel string
	var logFile string

	cmd := &cobra.Command{
		Use:           "doodleclass",
		Short:         "Train and evaluate doodle category classifiers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logFile, logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, none)")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append logs to this file")

	cmd.AddCommand(NewTrainCmd(db))
	cmd.AddCommand(NewEvalCmd(db))
	cmd.AddCommand(NewPredictCmd())
	cmd.AddCommand(NewRunsCmd(db))

	return cmd
}

func Execute(db *sql.DB) error {
	cmd := NewRootCmd(db)
	return cmd.Execute()
}
