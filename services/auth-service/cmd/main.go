package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/handler"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/notifier"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/echo-auth-api/shared/auth"
	"github.com/vasapolrittideah/echo-auth-api/shared/discovery"
	"github.com/vasapolrittideah/echo-auth-api/shared/logger"
	"github.com/vasapolrittideah/echo-auth-api/shared/mailer"
	"github.com/vasapolrittideah/echo-auth-api/shared/provider"
	"github.com/vasapolrittideah/echo-auth-api/shared/security"
	"github.com/vasapolrittideah/echo-auth-api/shared/utilities"
	"github.com/vasapolrittideah/echo-auth-api/shared/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("auth-service", "info", false).Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Server.Name, cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("auth service stopped with error")
	}

	log.Info().Msg("auth service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zerolog.Logger) error {
	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from mongo")
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping mongo: %w", err)
	}

	credentialRepo := repository.NewCredentialMongoRepository(ctx, log, mongoClient.Database(cfg.Mongo.Database))

	tokens := token.NewService(
		auth.NewJWTAuthenticator(cfg.Token.Audience, cfg.Token.Issuer),
		token.Config{
			SessionSecret:      cfg.Token.SessionSecret,
			SessionTTL:         cfg.Token.SessionTTL,
			VerificationSecret: cfg.Token.VerificationSecret,
			VerificationTTL:    cfg.Token.VerificationTTL,
		},
	)

	mailCfg, err := mailer.LoadConfig()
	if err != nil {
		return err
	}
	mail, err := mailer.NewMailer(mailCfg)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}
	mailNotifier := notifier.NewMailNotifier(mail, tokens, cfg.Server.BaseURL)

	var verificationNotifier usecase.VerificationNotifier = mailNotifier
	if cfg.MailQueue.RedisURL != "" {
		queued, shutdown, err := startMailQueue(cfg.MailQueue, mailNotifier, log)
		if err != nil {
			return err
		}
		defer shutdown()
		verificationNotifier = queued
	}

	googleVerifier, err := provider.NewGoogleIDTokenVerifier(ctx, cfg.Google.ClientID)
	if err != nil {
		return fmt.Errorf("failed to create google verifier: %w", err)
	}

	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	authUsecase := usecase.NewAuthUsecase(
		credentialRepo,
		tokens,
		verificationNotifier,
		googleVerifier,
		security.Argon2Hasher{},
		log,
	)

	router := handler.NewRouter(
		handler.RouterConfig{
			AllowedOrigins:    cfg.CORS.AllowedOrigins,
			RateLimitRequests: cfg.RateLimit.Requests,
			RateLimitWindow:   cfg.RateLimit.Window,
		},
		handler.NewAuthHTTPHandler(authUsecase, validator, log),
		tokens,
		log,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCHealthPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc health port: %w", err)
	}

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errCh := make(chan error, 2)

	go func() {
		errCh <- utilities.NewHealthServer(cfg.Server.Name, log).Serve(ctx, healthLis)
	}()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	if cfg.Discovery.ConsulEnabled {
		deregister, err := registerService(cfg, log)
		if err != nil {
			return err
		}
		defer deregister()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
	}
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}

	return runErr
}

func startMailQueue(
	cfg config.MailQueueConfig,
	mailNotifier *notifier.MailNotifier,
	log *zerolog.Logger,
) (*notifier.QueuedNotifier, func(), error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MAIL_QUEUE_REDIS_URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{notifier.MailQueue: 1},
		Logger:      notifier.NewQueueLogger(log),
	})

	mux := asynq.NewServeMux()
	notifier.NewTaskHandler(mailNotifier, log).Register(mux)

	if err := server.Start(mux); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to start mail queue worker: %w", err)
	}

	log.Info().Str("queue", notifier.MailQueue).Msg("mail queue worker started")

	shutdown := func() {
		server.Shutdown()
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close mail queue client")
		}
	}

	return notifier.NewQueuedNotifier(client), shutdown, nil
}

func registerService(cfg *config.Config, log *zerolog.Logger) (func(), error) {
	registry, err := discovery.NewConsulRegistry(cfg.Discovery.ConsulAddress)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.NewString())
	if err := registry.Register(discovery.Registration{
		ID:       id,
		Name:     cfg.Server.Name,
		Address:  cfg.Discovery.AdvertiseAddress,
		HTTPPort: cfg.Server.Port,
		GRPCPort: cfg.Server.GRPCHealthPort,
		Tags:     []string{"http", "auth"},
	}); err != nil {
		return nil, fmt.Errorf("failed to register with consul: %w", err)
	}

	log.Info().Str("service_id", id).Msg("registered with consul")

	return func() {
		if err := registry.Deregister(id); err != nil {
			log.Error().Err(err).Str("service_id", id).Msg("failed to deregister from consul")
		}
	}, nil
}
