// Command orderctl is the operator CLI: send messages or files through the
// WhatsApp gateway, replay a turn, or run one unattended pass by hand.
package main

import (
	"context"
	"fmt"
	"os"

	"orderbot_backend/platform/config"
	"orderbot_backend/platform/logger"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "orderctl",
	Short:         "Operate the WhatsApp order bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		log = logger.New(cfg.Env)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd, sendFileCmd, replyCmd, tickCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
