package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zurustar/keyfall/pkg/scoring"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [song]",
	Short: "Lists high scores",
	Long:  `Lists the high-score table, or the records of a single song.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := openStore().Load()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			records, ok := table[args[0]]
			if !ok {
				return fmt.Errorf("no scores for %q", args[0])
			}
			printRecords(cmd.OutOrStdout(), args[0], records)
			return nil
		}
		if len(table) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No high scores yet.")
			return nil
		}
		for i, song := range table.Songs() {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			printRecords(cmd.OutOrStdout(), song, table[song])
		}
		return nil
	},
}

func printRecords(w io.Writer, song string, records []scoring.HighScoreRecord) {
	fmt.Fprintf(w, "%s\n", song)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tACCURACY\tCOMBO\tDIFFICULTY\tDATE")
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%d\t%.1f%%\t%d\t%s\t%s\n",
			i+1, r.Score, r.Accuracy*100, r.MaxCombo, r.Difficulty, r.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
