package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/cr4all/supportservices/kafka"
)

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Log new sessions and visitor messages from the event log",
		Long: `Consume the chat event topic and report every new session and visitor
message, so operators can be alerted without polling the inbox.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers is not configured")
			}
			saramaConfig, err := kafka.NewSaramaConfig(&cfg.Kafka)
			if err != nil {
				return err
			}
			consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.Topic}, saramaConfig, kafka.NewNotifyHandler(nil))
			if err != nil {
				return err
			}
			defer func() {
				if err := consumer.Close(); err != nil {
					log.Warnf("Error closing consumer: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Infof("Watching topic %s as group %s", cfg.Kafka.Topic, cfg.Kafka.GroupID)
			return consumer.Start(ctx)
		},
	}
}
