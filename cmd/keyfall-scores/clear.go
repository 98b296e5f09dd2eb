package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zurustar/keyfall/pkg/scoring"
)

var clearAll bool

func init() {
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "remove every song")
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear <song>... | --all",
	Short: "Removes high scores",
	Long:  `Removes the records of the named songs, or of every song with --all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if clearAll == (len(args) > 0) {
			return fmt.Errorf("name at least one song or pass --all, not both")
		}

		store := openStore()
		table, err := store.Load()
		if err != nil {
			return err
		}

		if clearAll {
			table = scoring.Table{}
		}
		for _, song := range args {
			if _, ok := table[song]; !ok {
				return fmt.Errorf("no scores for %q", song)
			}
			delete(table, song)
		}

		if err := store.Save(table); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "High scores cleared (%s)\n", store.Path())
		return nil
	},
}
