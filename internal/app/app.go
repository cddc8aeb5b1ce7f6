package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/agrovision/leaf-diagnosis/config"
	kafkactrl "github.com/agrovision/leaf-diagnosis/internal/controller/kafka"
	"github.com/agrovision/leaf-diagnosis/internal/controller/restapi"
	"github.com/agrovision/leaf-diagnosis/internal/controller/worker/outbox"
	"github.com/agrovision/leaf-diagnosis/internal/infrastructure/classifier"
	infrakafka "github.com/agrovision/leaf-diagnosis/internal/infrastructure/kafka"
	"github.com/agrovision/leaf-diagnosis/internal/repo/persistent"
	"github.com/agrovision/leaf-diagnosis/internal/usecase/analytics"
	"github.com/agrovision/leaf-diagnosis/internal/usecase/diagnosis"
	"github.com/agrovision/leaf-diagnosis/internal/usecase/inference"
	"github.com/agrovision/leaf-diagnosis/pkg/httpserver"
	"github.com/agrovision/leaf-diagnosis/pkg/kafka/consumer"
	"github.com/agrovision/leaf-diagnosis/pkg/kafka/producer"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
	"github.com/agrovision/leaf-diagnosis/pkg/postgres"
	"github.com/agrovision/leaf-diagnosis/pkg/s3client"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Model; the service does not come up without its weights
	model, err := classifier.Load(cfg.Model.Path)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - classifier.Load: %w", err))
	}
	l.Info("app - Run - model version: %s", model.Version())

	// Repository

	// s3
	s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
	defer s3Cancel()
	s3c, err := s3client.New(s3Ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - s3client.New: %w", err))
	}

	// postgres
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// Use-Case

	diagnosisRepo := persistent.NewDiagnosisRepo(pg)
	imageAssetRepo := persistent.NewImageAssetRepo(pg)

	// diagnosis use-case
	diagnosisUseCase := diagnosis.New(
		persistent.NewBlobRepo(s3c, cfg.S3.Bucket),
		imageAssetRepo,
		diagnosisRepo,
		persistent.NewOutboxRepo(pg),
		pg,
		l,
	)

	// inference use-case
	inferenceUseCase := inference.New(model)

	// analytics use-case
	analyticsUseCase := analytics.New(diagnosisRepo, imageAssetRepo, model)

	// Kafka Producer
	kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
	}

	// Outbox Relay Worker
	outboxRelayWorker := outbox.New(
		diagnosisUseCase,
		infrakafka.NewEventProducer(kafkaProducer, cfg.OutboxRelay.MaxRetries, cfg.Kafka.Topic),
		l,
		cfg.OutboxRelay.PollInterval,
		cfg.OutboxRelay.CleanupInterval,
		cfg.OutboxRelay.MarkFailedInterval,
		cfg.OutboxRelay.ProcessBatchTimeout,
		cfg.OutboxRelay.BatchSize,
		cfg.OutboxRelay.MaxRetries,
	)

	// Kafka Consumer
	kafkaConsumer, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - consumer.New: %w", err))
	}

	// Kafka as Controller
	kafkaController := kafkactrl.New(
		inferenceUseCase,
		diagnosisUseCase,
		infrakafka.NewEventConsumer(kafkaConsumer),
		l,
		cfg.KafkaController.CommitTimeout,
		cfg.KafkaController.ProcessTimeout,
		cfg.KafkaController.InferTimeout,
		runtime.NumCPU(),
	)

	// HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	restapi.NewRouter(httpServer.App, cfg, diagnosisUseCase, inferenceUseCase, analyticsUseCase, l)

	// Start Components
	err = outboxRelayWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - outboxRelayWorker.Start: %w", err))
	}
	err = kafkaController.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - kafkaController.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	orlShutdownCtx, orlShutdownCancel := context.WithTimeout(ctx, cfg.OutboxRelay.ShutdownTimeout)
	defer orlShutdownCancel()
	err = outboxRelayWorker.Shutdown(orlShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - outboxRelayWorker.Shutdown: %w", err))
	}

	kcShutdownCtx, kcShutdownCancel := context.WithTimeout(ctx, cfg.KafkaController.ShutdownTimeout)
	defer kcShutdownCancel()
	err = kafkaController.Shutdown(kcShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - kafkaController.Shutdown: %w", err))
	}
}
