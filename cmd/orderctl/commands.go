package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbot_backend/internal/bootstrap"
	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/pipeline"
	"orderbot_backend/internal/scheduler"
	"orderbot_backend/internal/whatsapp"

	"github.com/spf13/cobra"
)

var (
	fromPhone string
	caption   string
)

// sendCmd sends a plain text message
var sendCmd = &cobra.Command{
	Use:   "send <phone> <message>",
	Short: "Send a WhatsApp text message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := gateway()
		if err != nil {
			return err
		}
		id, err := client.SendMessage(cmd.Context(), args[0], args[1], fromPhone)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
		return nil
	},
}

// sendFileCmd sends a local file as a document
var sendFileCmd = &cobra.Command{
	Use:   "sendfile <phone> <path>",
	Short: "Send a file through WhatsApp",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[1]); err != nil {
			return fmt.Errorf("file: %w", err)
		}
		client, err := gateway()
		if err != nil {
			return err
		}
		id, err := client.SendFile(cmd.Context(), args[0], args[1], caption, fromPhone)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
		return nil
	},
}

// replyCmd runs one turn for an ad-hoc message that is not stored
var replyCmd = &cobra.Command{
	Use:   "reply <client-phone> <message>",
	Short: "Run the order pipeline for a message and send its reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer rt.Close()

		out, err := rt.Pipeline.HandleTurn(ctx, pipeline.Turn{
			ClientPhone: args[0],
			Message: conversation.Message{
				Direction: conversation.DirectionReceived,
				Content:   conversation.FlattenNewlines(args[1]),
				SentAt:    time.Now(),
			},
			Source: pipeline.SourceCLI,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.State, out.Reason)
		return err
	},
}

// tickCmd runs a single unattended pass
var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Answer clients whose last message is inside the staleness window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
		if err != nil {
			return err
		}
		defer rt.Close()

		u := scheduler.NewUnattended(rt.Repo, rt.Pipeline, scheduler.UnattendedOptions{
			MinAge:        cfg.GetUnattendedMinAge(),
			MaxAge:        cfg.GetUnattendedMaxAge(),
			Concurrency:   cfg.GetUnattendedConcurrency(),
			ClientTimeout: cfg.GetUnattendedClientTimeout(),
		}, log)
		report, err := u.Tick(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d handled=%d skipped=%d failed=%d\n",
			report.Candidates, report.Handled, report.Skipped, report.Failed)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, sendFileCmd} {
		c.Flags().StringVar(&fromPhone, "from", "", "operator phone the message is sent from")
	}
	sendFileCmd.Flags().StringVar(&caption, "caption", "", "caption shown under the file")
}

func gateway() (*whatsapp.Client, error) {
	client := whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log)
	if client == nil {
		return nil, errors.New("WHATSAPP_URL is not configured")
	}
	return client, nil
}
