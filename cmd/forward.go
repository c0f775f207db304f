package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/providory/outreach/internal/mail"
)

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Forward unread replies from the outreach inbox",
	Long:  "Logs into the outreach mailbox over IMAP and forwards every unread message to the configured personal address, attaching the original as an .eml file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.ValidateForward(); err != nil {
			return err
		}

		sender := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTPUser(), cfg.SMTP.Password,
			cfg.Outreach.SenderName, cfg.Outreach.ReplyTo, cfg.Crawl.SubmitTimeout())

		fwd := mail.NewForwarder(
			fmt.Sprintf("%s:%d", cfg.IMAP.Host, cfg.IMAP.Port),
			cfg.IMAPUser(), cfg.IMAPPassword(),
			cfg.Outreach.ReplyTo, cfg.Outreach.ForwardTo, sender)

		n, err := fwd.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Forwarded %d messages\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forwardCmd)
}
