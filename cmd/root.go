package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "records-cli",
	Short: "Batch submission of municipal public records requests",
	Long: "Reads a list of municipal records request forms, submits each one through a hosted browser agent " +
		"or by filling its PDF, and keeps an auditable record of every outcome.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
