package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/onronder/ContentLabTech-sub011/internal/api_server"
	"github.com/onronder/ContentLabTech-sub011/internal/auth"
	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/internal/dispatcher"
	"github.com/onronder/ContentLabTech-sub011/internal/events"
	handlers "github.com/onronder/ContentLabTech-sub011/internal/handlers/v1alpha1"
	"github.com/onronder/ContentLabTech-sub011/internal/processor"
	"github.com/onronder/ContentLabTech-sub011/internal/queue"
	"github.com/onronder/ContentLabTech-sub011/internal/results"
	"github.com/onronder/ContentLabTech-sub011/internal/service"
	"github.com/onronder/ContentLabTech-sub011/internal/status"
	"github.com/onronder/ContentLabTech-sub011/internal/store"
	"github.com/onronder/ContentLabTech-sub011/pkg/metrics"
)

const dispatcherStopTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline and its api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}
		defer initLogger(cfg)()

		zap.S().Info("Starting analysis pipeline")
		defer zap.S().Info("Analysis pipeline stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(ctx); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		producer := events.NewEventProducer(newEventWriter(cfg), events.WithOutputTopic(cfg.Kafka.Topic))
		defer func() { _ = producer.Close() }()

		resultStore := results.NewStore(resultOptions(cfg, s)...)
		loaded, err := resultStore.Load(ctx)
		if err != nil {
			zap.S().Fatalw("loading results", "error", err)
		}
		zap.S().Infof("loaded %d results", loaded)

		registry := processor.NewDefaultRegistry(processor.Dependencies{
			Fetcher: processor.NewHTTPFetcher(
				processor.WithUserAgent(cfg.Pipeline.UserAgent),
				processor.WithFetchTimeout(cfg.Pipeline.FetchTimeout),
			),
			Results: resultStore,
			History: results.NewHistory(s.Job(), cfg.Pipeline.HistoryLimit),
		})

		q := queue.New(registry,
			queue.WithCapacity(cfg.Pipeline.Workers),
			queue.WithMaxRetries(cfg.Pipeline.MaxRetries),
			queue.WithBackoff(cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffCap),
			queue.WithTimeoutMultiplier(cfg.Pipeline.TimeoutMultiplier),
			queue.WithRecorder(s.Job()),
			queue.WithHook(events.QueueHook(producer)),
		)
		defer q.Close()

		recovered, err := q.Recover(ctx)
		if err != nil {
			zap.S().Fatalw("recovering jobs", "error", err)
		}
		zap.S().Infof("recovered %d jobs", recovered)

		if err := metrics.RegisterQueueCollector(q); err != nil {
			zap.S().Warnw("failed to register queue metrics", "error", err)
		}

		d := dispatcher.New(q, registry, resultStore, dispatcher.WithReaperInterval(cfg.Pipeline.ReaperInterval))
		d.Start(ctx)
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), dispatcherStopTimeout)
			defer stop()
			if err := d.Stop(stopCtx); err != nil {
				zap.S().Warnw("dispatcher stopped before in-flight jobs finished", "error", err)
			}
		}()

		aggregator := status.NewAggregator(status.QueueJobs{Queue: q, Records: s.Job()}, resultStore, q, cfg.Pipeline.HistoryLimit)
		h := handlers.NewServiceHandler(service.NewPipelineService(q, aggregator, registry, s.Job()))

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			authenticator, err := auth.NewAuthenticator(cfg.Auth)
			if err != nil {
				zap.S().Fatalw("creating authenticator", "error", err)
			}

			server := apiserver.New(cfg, h, listener, authenticator)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("Error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newEventWriter(cfg *config.Config) events.Writer {
	if !cfg.KafkaEnabled() {
		return &events.StdoutWriter{}
	}
	w, err := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Version)
	if err != nil {
		zap.S().Errorw("failed to create kafka writer, events go to stdout", "error", err)
		return &events.StdoutWriter{}
	}
	return w
}

func resultOptions(cfg *config.Config, s store.Store) []results.Option {
	opts := []results.Option{results.WithRecordStore(s.Result())}
	if !cfg.ArchiveEnabled() {
		return opts
	}

	archiver, err := results.NewMinioArchiver(
		results.WithEndpoint(cfg.S3.Endpoint),
		results.WithBucket(cfg.S3.Bucket),
		results.WithAccessKey(cfg.S3.AccessKey),
		results.WithSecretKey(cfg.S3.SecretKey),
		results.WithSSL(cfg.S3.UseSSL),
	)
	if err != nil {
		zap.S().Errorw("failed to create result archiver", "error", err)
		return opts
	}
	return append(opts, results.WithArchiver(archiver))
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
