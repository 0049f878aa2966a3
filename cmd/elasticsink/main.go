package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devcode-git/stream-reactor/internal/api"
	"github.com/devcode-git/stream-reactor/internal/config"
	"github.com/devcode-git/stream-reactor/internal/elastic"
	"github.com/devcode-git/stream-reactor/internal/kafka"
	"github.com/devcode-git/stream-reactor/internal/logger"
	"github.com/devcode-git/stream-reactor/internal/metrics"
	"github.com/devcode-git/stream-reactor/internal/sink"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting Elasticsearch sink...")

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Sink terminated")
	}
	log.Info().Msg("Sink stopped")
}

func run(cfg *config.Config) error {
	client, err := elastic.NewClient(elastic.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		APIKey:    cfg.Elasticsearch.APIKey,
	}, log.Logger)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}

	policy, err := sink.NewErrorPolicy(
		cfg.Sink.ErrorPolicy,
		cfg.Sink.MaxRetries,
		time.Duration(cfg.Sink.RetryIntervalMS)*time.Millisecond,
		log.Logger,
	)
	if err != nil {
		return err
	}

	stats := metrics.New()

	writer, err := sink.NewWriter(sink.Settings{
		Separator:     cfg.Sink.Separator,
		UseRecordKey:  cfg.Sink.UseRecordKey,
		WriteTimeout:  time.Duration(cfg.Sink.WriteTimeoutSeconds) * time.Second,
		MaxConcurrent: cfg.Sink.MaxConcurrent,
	}, cfg.Mappings, client, policy, stats, nil, log.Logger)
	if err != nil {
		return err
	}
	defer writer.Close()

	consumer, err := kafka.NewConsumer(kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.GroupID,
		ClientID: cfg.Kafka.ClientID,
		Topics:   writer.Topics(),
	}, writer, log.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer consumer.Close()
		return consumer.Run(ctx)
	})

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server.Host, cfg.Server.Port, stats, log.Logger)
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			return server.Shutdown()
		})
	}

	return g.Wait()
}
