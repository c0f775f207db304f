package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/providory/outreach/internal/followup"
	"github.com/providory/outreach/internal/mail"
)

var followupLimit int

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Send timed follow-up emails to contacted providers",
	Long:  "Sends the day-4 view-count nudge and the day-10 expiry reminder to providers who were contacted by email and have not claimed their listing.",
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

		limit := followupLimit
		if limit <= 0 {
			limit = cfg.Outreach.FollowUpLimit
		}

		sender := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTPUser(), cfg.SMTP.Password,
			cfg.Outreach.SenderName, cfg.Outreach.ReplyTo, cfg.Crawl.SubmitTimeout())

		sched := followup.New(st, sender, followup.Identity{
			SenderName: cfg.Outreach.SenderName,
			ReplyTo:    cfg.Outreach.ReplyTo,
			Directory:  cfg.Directory.Name,
			BaseURL:    cfg.Directory.BaseURL,
		}, limit, nil)

		sum, err := sched.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Follow-ups sent: day4=%d day10=%d skipped=%d\n",
			sum.Day4Sent, sum.Day10Sent, sum.Skipped)
		return nil
	},
}

func init() {
	followupCmd.Flags().IntVar(&followupLimit, "limit", 0, "max follow-ups this run (default from config)")
	rootCmd.AddCommand(followupCmd)
}
