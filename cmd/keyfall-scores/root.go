package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zurustar/keyfall/pkg/cli"
	"github.com/zurustar/keyfall/pkg/highscore"
	"github.com/zurustar/keyfall/pkg/logger"
)

var (
	scoresPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "keyfall-scores",
	Short: "keyfall high scores and song tools",
	Long: `Lists, serves and clears the keyfall high-score table, and inspects
Standard MIDI Files before practising them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.InitLoggerTo(logLevel, cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scoresPath, "scores", "", "high-score file (default $KEYFALL_SCORES or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

// openStore resolves the high-score file the same way the practice runner does.
func openStore() *highscore.FileStore {
	path := scoresPath
	if path == "" {
		path = os.Getenv("KEYFALL_SCORES")
	}
	if path == "" {
		path = cli.DefaultScoresPath()
	}
	return highscore.NewFileStore(path)
}
