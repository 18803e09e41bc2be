package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patient-idv/internal/application/document"
	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/application/ocr"
	"github.com/patient-idv/internal/application/registration"
	"github.com/patient-idv/internal/config"
	"github.com/patient-idv/internal/infrastructure/awsconf"
	"github.com/patient-idv/internal/infrastructure/azure"
	"github.com/patient-idv/internal/infrastructure/dynamo"
	jwtinfra "github.com/patient-idv/internal/infrastructure/jwt"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/metrics"
	"github.com/patient-idv/internal/infrastructure/queue"
	redisinfra "github.com/patient-idv/internal/infrastructure/redis"
	s3infra "github.com/patient-idv/internal/infrastructure/s3"
	snsinfra "github.com/patient-idv/internal/infrastructure/sns"
	"github.com/patient-idv/internal/infrastructure/tesseract"
	transporthttp "github.com/patient-idv/internal/transport/http"
	"github.com/patient-idv/internal/transport/http/handler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := logger.Init(cfg.AppEnv, cfg.LogLevel, cfg.OCR.DebugLogPath); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("server stopped with error", logger.LoggerOptions{Key: "error", Data: err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	m := metrics.New(prometheus.DefaultRegisterer)

	awsCfg, err := awsconf.Load(ctx, cfg, "")
	if err != nil {
		return err
	}
	dynamoClient := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
	if cfg.DynamoBootstrap {
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	}

	store, err := documentStore(cfg, awsCfg)
	if err != nil {
		return err
	}

	redisClient, err := redisinfra.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	var healthChecks []handler.HealthCheck
	var locks *redisinfra.ReceiptLock
	var cleanup document.CleanupQueue
	var worker *asynq.Server
	var broker *queue.Broker
	var redisOpt asynq.RedisConnOpt
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Check: redisClient.Health})
		locks = redisinfra.NewReceiptLock(redisClient.Client, cfg.ReceiptLockTTL)

		redisOpt, err = queue.RedisOpt(cfg.RedisURL)
		if err != nil {
			return err
		}
		broker = queue.NewBroker(redisOpt)
		defer broker.Close()
		cleanup = broker
	} else {
		logger.Warning("REDIS_URL not set: receipts are not single-use and failed document deletes are not retried")
	}

	documents := document.NewService(store, cleanup, m)
	if broker != nil {
		var mux *asynq.ServeMux
		worker, mux = queue.NewServer(redisOpt, 2, documents)
		if err := worker.Start(mux); err != nil {
			return fmt.Errorf("start cleanup worker: %w", err)
		}
		defer worker.Shutdown()
	}

	tickets, err := jwtinfra.NewProvider(cfg.EmailTicketPublicKeyPath, cfg.EmailTicketPrivateKeyPath, cfg.EmailTicketExpiry)
	if err != nil {
		return fmt.Errorf("email ticket keys: %w", err)
	}

	gate, closeGates, err := identityGate(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer closeGates()

	svcDeps := registration.ServiceDeps{
		Repo:            dynamo.NewRegistrationRepo(dynamoClient, cfg.DynamoTables.Registrations),
		Documents:       documents,
		Gate:            gate,
		DocumentBinding: cfg.Face.DocumentBinding,
		Metrics:         m,
	}
	if locks != nil {
		svcDeps.Locks = locks
	}

	router, limiter := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Registrations: registration.NewService(svcDeps),
		Tickets:       tickets,
		HealthChecks:  healthChecks,
		Metrics:       promhttp.Handler(),
	})
	defer limiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.LoggerOptions{Key: "port", Data: cfg.AppPort},
			logger.LoggerOptions{Key: "env", Data: cfg.AppEnv})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func documentStore(cfg *config.Config, awsCfg aws.Config) (document.Store, error) {
	if cfg.StorageDriver == "azure" {
		return azure.NewStore(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	}
	return s3infra.NewStore(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.S3BucketName), nil
}

// identityGate composes the face gate with the optional document number gate.
func identityGate(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (identity.Gate, func(), error) {
	policy := cfg.Face.Policy()
	if err := policy.Validate(); err != nil {
		return nil, nil, err
	}

	var alerter identity.Alerter
	if cfg.SNSAlertTopicARN != "" {
		snsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
		if err != nil {
			return nil, nil, err
		}
		alerter = snsinfra.NewAlertPublisher(snsinfra.NewClient(snsCfg, cfg.AWSEndpointURL), cfg.SNSAlertTopicARN)
	}

	closer := func() {}
	var extractor identity.DocumentFaceExtractor
	if cfg.Face.DocumentBinding {
		ext, release, err := documentExtractor(ctx, cfg.Face)
		if err != nil {
			return nil, nil, err
		}
		extractor, closer = ext, release
	}

	gates := []identity.Gate{identity.NewFaceGate(policy, extractor, alerter)}
	if cfg.OCR.Enabled {
		engine := tesseract.New(cfg.OCR.TesseractBin, cfg.OCR.Timeout)
		if err := engine.Available(); err != nil {
			logger.Error("ocr engine unavailable, document number checks will fail",
				logger.LoggerOptions{Key: "error", Data: err.Error()})
		}
		gates = append(gates, identity.NewDocumentNumberGate(ocr.NewExtractor(engine, m)))
	}
	return identity.All(m, gates...), closer, nil
}
