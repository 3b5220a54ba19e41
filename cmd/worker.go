/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/logger"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/services"
)

// workerCmd consumes task events and records them as structured activity logs.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume task events from the configured message queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.New(cfg.Log).With(slog.String("component", "worker"))

		queue, err := mq.Open(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer queue.Close()

		log.Info("consuming task events", slog.String("backend", cfg.MQ.Backend), slog.String("channel", cfg.MQ.TaskEventsChannel))
		err = queue.Subscribe(cmd.Context(), cfg.MQ.TaskEventsChannel, services.TaskEventLogger(log))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
