package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/analysis"
	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/cache"
	"callaudit-server/pkg/config"
	"callaudit-server/pkg/diarize"
	http_server "callaudit-server/pkg/http"
	"callaudit-server/pkg/messaging"
	"callaudit-server/pkg/metrics"
	"callaudit-server/pkg/pipeline"
	"callaudit-server/pkg/stt"
	"callaudit-server/pkg/version"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	amqpClient *messaging.AMQPClient
	httpServer *http_server.Server
	eventHub   *http_server.EventHub

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	// Basic logger setup, refined once configuration is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	logger.WithField("version", version.Version).Info("Starting call audit server")

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.Info("HTTP server started")

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Cancel the root context to signal shutdown to all goroutines
	rootCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	if amqpClient != nil {
		amqpClient.Disconnect()
	}

	logger.Info("Shutdown complete")
}

func initialize() error {
	var err error
	appConfig, err = config.Load(logger)
	if err != nil {
		return err
	}
	appConfig.ConfigureLogger(logger)

	metrics.StartMetrics(logger, appConfig.Metrics.Enabled)

	resources := appConfig.LoadResources(logger)

	// Durable artifact store and the cache in front of it
	store, err := artifact.NewFileStore(logger, appConfig.Storage.ArtifactDir)
	if err != nil {
		return err
	}
	tiered := cache.New(logger, store)

	// Analysis collaborators
	providers := stt.NewRegistry(logger, appConfig.Providers.Default)
	providers.RegisterTranscriber(stt.NewMockTranscriber(logger))
	providers.RegisterDiarizer(stt.NewMockDiarizer(logger))
	providers.RegisterSentiment(stt.NewMockSentiment(logger))

	if appConfig.Providers.TranscribeURL != "" || appConfig.Providers.DiarizeURL != "" || appConfig.Providers.SentimentURL != "" {
		remote := stt.NewRemoteProvider(logger, stt.RemoteConfig{
			TranscribeURL: appConfig.Providers.TranscribeURL,
			DiarizeURL:    appConfig.Providers.DiarizeURL,
			SentimentURL:  appConfig.Providers.SentimentURL,
			Timeout:       appConfig.Providers.Timeout,
		})
		providers.RegisterTranscriber(remote)
		providers.RegisterDiarizer(remote)
		providers.RegisterSentiment(remote)
	}

	// Detectors built from the YAML resource files
	sensitive, err := analysis.NewSensitiveInfoDetector(logger, resources.Sensitive)
	if err != nil {
		return err
	}
	compliance := analysis.NewComplianceChecker(logger, resources.Phrases)
	categorizer := analysis.NewCategorizer(logger, resources.Categories)
	agentPhrases := append(append([]string{}, resources.Phrases.Greetings...), resources.Phrases.Closing...)
	roleAssigner := diarize.NewRoleAssigner(logger, agentPhrases)

	orchestrator := pipeline.New(logger, tiered, providers, compliance, sensitive, categorizer, roleAssigner)

	// WebSocket event hub
	eventHub = http_server.NewEventHub(logger)
	go eventHub.Run(rootCtx)
	orchestrator.AddNotifier(eventHub)

	// Optional AMQP stage event publishing
	if appConfig.Messaging.AMQPUrl != "" {
		amqpClient = messaging.NewAMQPClient(logger, messaging.AMQPConfig{
			URL:       appConfig.Messaging.AMQPUrl,
			QueueName: appConfig.Messaging.QueueName,
		})
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP connection failed, stage events will not be published")
		} else {
			orchestrator.AddNotifier(amqpClient)
		}
	}

	// HTTP surface
	httpServer = http_server.NewServer(logger, &http_server.Config{
		Port:           appConfig.HTTP.Port,
		ReadTimeout:    appConfig.HTTP.ReadTimeout,
		WriteTimeout:   appConfig.HTTP.WriteTimeout,
		MaxUploadBytes: appConfig.HTTP.MaxUploadBytes,
		EnableMetrics:  appConfig.Metrics.Enabled,
	})
	httpServer.SetEventHub(eventHub)
	httpServer.RegisterStageEndpoints(http_server.NewStageHandlers(logger, orchestrator, store, appConfig.HTTP.MaxUploadBytes))

	return nil
}
