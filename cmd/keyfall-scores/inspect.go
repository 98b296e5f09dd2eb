package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/score"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>...",
	Short: "Inspects a MIDI file",
	Long:  `Prints the header, tempo map and per-channel note counts of each Standard MIDI File.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, path := range args {
			sc, err := score.LoadFile(path, score.WithLogger(logger.GetLogger()))
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File: %s\n", path)
			sc.Describe(cmd.OutOrStdout())
		}
		return nil
	},
}
