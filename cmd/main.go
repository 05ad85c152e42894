package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nexchat/auth"
	"nexchat/contract"
	"nexchat/infrastructure/blob"
	"nexchat/infrastructure/rest"
	"nexchat/infrastructure/ws"
	"nexchat/moderation"
	"nexchat/observability"
	"nexchat/repositories"
	"nexchat/runtime"
	"nexchat/runtime/workers"
	"nexchat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a termination signal.
// Returning instead of exiting lets deferred cleanup close the store.
func run() error {
	// 1. Configuration & Logger
	if err := loadDotenv(); err != nil {
		return fmt.Errorf("dotenv error: %w", err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Metrics
	registerer := prometheus.NewRegistry()
	registerer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registerer)

	// 5. Collaborators
	uploader, err := newUploader(ctx, config)
	if err != nil {
		return fmt.Errorf("blob uploader failed: %w", err)
	}
	censor, err := newCensor(config, log)
	if err != nil {
		return fmt.Errorf("moderation failed: %w", err)
	}
	tokens := auth.NewJWTService(config.JWTSecret, config.AuthTokenDuration)

	// 6. Message core
	registry := runtime.NewRegistry(config.SingleConnectionPerUser)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	retry := runtime.DefaultRetryConfig()
	retry.MaxAttempts = config.UploadMaxAttempts
	retry.InitialDelay = config.UploadInitialBackoff

	chatService := services.NewChatService(log, registry,
		runtime.NewPresenceBroadcaster(registry, log, metrics),
		runtime.NewMessageRouter(log, registry, messageRepository, uploader, censor, time.Now, retry, metrics),
		runtime.NewMutationAuthorizer(log, registry, messageRepository, censor, time.Now, config.MutabilityWindow, metrics),
		messageRepository,
	)
	authService := services.NewAuthService(
		repositories.NewUserRepository(db),
		repositories.NewThrottleRepository(db),
		tokens,
		config.RegisterLimitPerDay,
	)

	// 7. Transports
	websocket := ws.NewHandler(ctx, log, tokens, chatService,
		ws.NewOriginPolicy(config.origins(), log),
		ws.Config{
			SendBuffer:      config.ConnectionBufferSize,
			MaxMessageSize:  config.MaxMessageSize,
			RateLimitBurst:  config.RateLimitBurst,
			RateLimitRefill: config.RateLimitRefillInterval,
		},
		metrics,
	)
	monitoring := observability.NewMonitoringManager(log, config.MonitorInterval)
	options := rest.Options{
		Environment:   config.Environment,
		SecureCookies: config.SecureCookies,
		TokenDuration: config.AuthTokenDuration,
		Gatherer:      registerer,
		Websocket:     websocket,
	}
	if config.BlobBackend != "s3" {
		options.UploadDir = config.UploadDir
	}
	server := rest.NewServer(log, tokens, authService, chatService, monitoring, options)

	// 8. Supervision
	health := workers.NewHealthServerWorker(log, net.JoinHostPort(config.Host, strconv.Itoa(config.HealthPort)))
	supervisor := workers.NewSupervisor(log, config.RestartInterval, metrics)
	supervisor.Add(
		workers.NewHTTPServerWorker(log, config.address(), server.Handler()),
		health,
		monitoring,
	)

	log.Info("Starting nexchat", "address", config.address(), "environment", config.Environment,
		"blob_backend", config.BlobBackend, "single_connection", config.SingleConnectionPerUser)
	supervisor.Run(ctx)

	// 9. Drain live connections before the store closes
	health.SetServing(false)
	chatService.Shutdown()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelDrain()
	if err := websocket.Wait(drainCtx); err != nil {
		log.Warn("Connections still open at shutdown", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}

// loadDotenv preloads a .env file when one exists; real environment
// variables keep precedence.
func loadDotenv() error {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func newUploader(ctx context.Context, config Config) (contract.BlobUploader, error) {
	switch config.BlobBackend {
	case "s3":
		return blob.NewS3Uploader(ctx, blob.S3Config{
			Bucket:          config.S3Bucket,
			Region:          config.S3Region,
			Endpoint:        config.S3Endpoint,
			Prefix:          config.S3Prefix,
			AccessKeyID:     config.S3AccessKeyID,
			SecretAccessKey: config.S3SecretAccessKey,
			UsePathStyle:    config.S3UsePathStyle,
			PublicBaseURL:   config.PublicBaseURL,
		})
	case "disk", "":
		return blob.NewDiskUploader(config.UploadDir, config.publicBaseURL()+"/uploads")
	default:
		return nil, fmt.Errorf("unknown blob backend %q", config.BlobBackend)
	}
}

// newCensor returns nil when no word list is configured, which leaves
// message text untouched.
func newCensor(config Config, log *slog.Logger) (contract.Censor, error) {
	if config.CensoredWordsPath == "" {
		return nil, nil
	}
	data, err := moderation.LoadWords(os.DirFS(config.CensoredWordsPath), ".")
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(data.Words, config.censorRune(), log)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderator, nil
}
