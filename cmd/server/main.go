package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vtranslate/storefront/internal/authflow"
	"github.com/vtranslate/storefront/internal/checkout"
	"github.com/vtranslate/storefront/internal/config"
	"github.com/vtranslate/storefront/internal/handlers"
	"github.com/vtranslate/storefront/internal/middleware"
	"github.com/vtranslate/storefront/internal/registry"
	"github.com/vtranslate/storefront/internal/repository"
	"github.com/vtranslate/storefront/internal/service"
	"github.com/vtranslate/storefront/internal/session"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	store, closeStore, err := initSessionStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session store")
	}
	defer closeStore()

	var (
		customers *repository.CustomerRepository
		intents   *repository.PaymentIntentRepository
	)
	if cfg.DynamoDB.Enabled {
		dynamoClient, err := initDynamoDB(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
		customers = repository.NewCustomerRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
		intents = repository.NewPaymentIntentRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	}

	tokens, err := service.NewSessionTokenService(&cfg.Session, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session token service")
	}

	otpClient := service.NewOTPClient(&cfg.OTP, logger)
	processor := service.NewStripeProcessor(&cfg.Stripe, logger)

	var gatewayOpts []service.GatewayOption
	if intents != nil {
		gatewayOpts = append(gatewayOpts, service.WithIntentRecorder(intents, cfg.DynamoDB.IntentRecordTTL))
	}
	gateway := service.NewPaymentGateway(processor, cfg.Stripe.Currency, logger, gatewayOpts...)

	factory := func(ctx context.Context, sessionID string) *registry.Flows {
		entry := logger.WithField("session_id", sessionID)
		state := session.NewState(store, sessionID)

		var authOpts []authflow.Option
		if customers != nil {
			authOpts = append(authOpts, authflow.WithCustomerRecorder(customers))
		}
		return &registry.Flows{
			Auth:     authflow.NewController(ctx, otpClient, state, entry.WithField("flow", "auth"), authOpts...),
			Checkout: checkout.NewController(sessionID, state, gateway, entry.WithField("flow", "checkout")),
		}
	}
	flows := registry.New(factory, cfg.Session.FlowIdleTTL, logger)

	views, err := handlers.NewViews(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse templates")
	}

	deps := handlers.PageDeps{
		Flows:     flows,
		Store:     store,
		Processor: processor,
		Views:     views,
		Config: handlers.PageConfig{
			BaseURL:        cfg.Server.BaseURL,
			PublishableKey: cfg.Stripe.PublishableKey,
			GoogleClientID: cfg.OAuth.GoogleClientID,
		},
		Logger: logger,
	}
	if intents != nil {
		deps.Intents = intents
	}
	if customers != nil {
		deps.Customers = customers
	}
	pages := handlers.NewPageHandlers(deps)

	router := handlers.SetupRouter(handlers.RouterDeps{
		Pages:          pages,
		Payments:       handlers.NewPaymentHandlers(gateway, logger),
		Sessions:       middleware.NewSessionMiddleware(tokens, &cfg.Session, logger),
		Store:          store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return flows.Run(gctx, sweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		closeStore()
		os.Exit(1)
	}

	logger.Info("Server exited")
}

// initSessionStore returns the configured store and a function releasing its resources.
func initSessionStore(cfg *config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.Session.Store == config.SessionStoreMemory {
		logger.Warn("Using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(cfg.Session.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Endpoint, err)
	}

	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis session store initialized")
	return session.NewRedisStore(client, cfg.Session.TTL, logger), func() { _ = client.Close() }, nil
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}
