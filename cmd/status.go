package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contact counts per outreach status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.StatusCounts(ctx)
		if err != nil {
			return err
		}

		byName := make(map[string]int, len(counts))
		keys := make([]string, 0, len(counts))
		total := 0
		for k, n := range counts {
			byName[string(k)] = n
			keys = append(keys, string(k))
			total += n
		}
		sort.Strings(keys)

		for _, k := range keys {
			name := k
			if name == "" {
				name = "(unclassified)"
			}
			fmt.Printf("%-20s %d\n", name, byName[k])
		}
		fmt.Printf("%-20s %d\n", "total", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
