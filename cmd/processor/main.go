package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-processor/internal/config"
	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/processor"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// create processor
	p := processor.New(cfg)

	// run processor in background
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		if err := <-done; err != nil {
			log.Error().Err(err).Msg("processor exited")
		}
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("processor exited")
			os.Exit(1)
		}
	}

	log.Info().Msg("exited")
}
