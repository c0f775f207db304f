package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/providory/outreach/internal/deliver"
	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/mail"
	"github.com/providory/outreach/internal/pipeline"
)

var (
	deliverCity  string
	deliverLimit int
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Send the initial outreach message to classified contacts",
	Long:  "Works through contacts classified as email or contact_form, sending the initial message over the matching channel up to the daily cap. Every attempt is recorded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.ValidateSend(); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		city := deliverCity
		if city == "" {
			city = cfg.Outreach.City
		}
		limit := deliverLimit
		if limit <= 0 {
			limit = cfg.Outreach.DailyLimit
		}

		sender := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTPUser(), cfg.SMTP.Password,
			cfg.Outreach.SenderName, cfg.Outreach.ReplyTo, cfg.Crawl.SubmitTimeout())

		ex := deliver.New(sender, func() deliver.FormFetcher {
			return fetcher.New(cfg.Crawl.SubmitTimeout())
		}, deliver.Identity{
			SenderName: cfg.Outreach.SenderName,
			ReplyTo:    cfg.Outreach.ReplyTo,
			Directory:  cfg.Directory.Name,
		})

		runner := pipeline.NewDeliverRunner(st, ex, cfg.Directory.BaseURL, city, limit, cfg.Crawl.RowDelay(), nil)

		sum, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Delivered %d messages: email=%d form=%d manual=%d down=%d none=%d skipped=%d\n",
			sum.Sent(), sum.DeliveredEmail, sum.DeliveredForm,
			sum.NeedsManual, sum.SiteDown, sum.NoContactMethod, sum.Skipped)
		return nil
	},
}

func init() {
	deliverCmd.Flags().StringVar(&deliverCity, "city", "", "only deliver to contacts in this city")
	deliverCmd.Flags().IntVar(&deliverLimit, "limit", 0, "max sends this run (default from config)")
	rootCmd.AddCommand(deliverCmd)
}
