package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/cmd/bot"
	"github.com/dkatz-labs/arbot/config"
	"github.com/dkatz-labs/arbot/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start scanning and executing",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load configuration", zap.Error(err))
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		b, err := bot.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}

		b.Start(ctx)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down gracefully...")
		cancel()
		b.Stop()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
