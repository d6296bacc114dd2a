package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/freevia/locator/internal/service_registry"
	"github.com/freevia/locator/pkg/file"
	"github.com/freevia/locator/pkg/identity"
	"github.com/freevia/locator/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func serveSubcommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer location requests over MQTT until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := opts.config
			log := opts.logger

			fileClient := file.NewFileService()

			// Initialize the installation identity
			installation := identity.NewInstallationInfo(config.Identity.InstallationFile, fileClient)
			if err := installation.LoadOrCreate(); err != nil {
				return err
			}
			log = log.With().Str("installation_id", installation.GetInstallationID()).Logger()

			resolver, err := newResolver(config, log)
			if err != nil {
				return err
			}

			// Generate a unique MQTT Client ID by appending a UUID
			clientID := config.MQTT.ClientID + "-" + uuid.NewString()
			log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

			mqttClient := mqtt.NewMqttService(fileClient, log)
			if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate, config.MQTT.ConnectTimeout); err != nil {
				return err
			}
			defer mqttClient.Disconnect(250)

			serviceRegistry := service_registry.NewServiceRegistry(mqttClient, resolver, log)
			if err := serviceRegistry.RegisterServices(config, installation); err != nil {
				return err
			}
			if err := serviceRegistry.StartServices(); err != nil {
				return err
			}
			log.Info().Msg("All services started successfully")

			// Handle graceful shutdown
			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
			<-stopCh

			log.Info().Msg("Shutting down gracefully...")
			return serviceRegistry.StopServices()
		},
	}
}
