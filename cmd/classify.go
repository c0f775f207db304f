package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/providory/outreach/internal/classify"
	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/pipeline"
)

var (
	classifyCity  string
	classifyLimit int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify how unprocessed contacts can be reached",
	Long:  "Probes each unclassified contact's website and records whether it exposes a mailto address, a confirmable contact form, a platform DM profile, or nothing usable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		city := classifyCity
		if city == "" {
			city = cfg.Outreach.City
		}
		limit := classifyLimit
		if limit <= 0 {
			limit = cfg.Outreach.ClassifyLimit
		}

		cl := classify.New(func() classify.PageFetcher {
			return fetcher.New(cfg.Crawl.FetchTimeout())
		})
		runner := pipeline.NewClassifyRunner(st, cl, city, limit, cfg.Crawl.RowDelay(), nil)

		sum, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Classified %d contacts: email=%d form=%d dm=%d none=%d\n",
			sum.Total(), sum.Email, sum.Form, sum.DM, sum.None)
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCity, "city", "", "only classify contacts in this city")
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "max rows to classify (default from config)")
	rootCmd.AddCommand(classifyCmd)
}
