package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"proxyvote/api"
	"proxyvote/service"
)

func init() {
	serveCmd.Flags().StringVar(&config.StorageDir, "storage", "data", "Directory for the submission journals")
	serveCmd.Flags().StringVar(&config.Listen, "listen", "localhost:8080", "API listen address")
	serveCmd.Flags().IntVar(&config.QueueSize, "queue", 256, "Broadcast queue size")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the relay API",
	RunE: func(cmd *cobra.Command, args []string) error {
		absPath, err := filepath.Abs(config.StorageDir)
		if err != nil {
			return err
		}

		relay, err := service.NewRelayService(service.Config{
			StoragePath: absPath,
			QueueSize:   config.QueueSize,
			Broadcaster: service.LogBroadcaster{},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		// The worker outlives ctx so Stop can drain the queue.
		relay.Start(context.Background())
		defer func() {
			relay.Stop()
			log.Info("Relay shutdown completed")
		}()

		return api.Serve(ctx, api.APIConfig{APIEndpoint: config.Listen}, relay)
	},
}
