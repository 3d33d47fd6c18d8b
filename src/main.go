package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rubbereco/rex-negotiation/internal/clients"
	"github.com/rubbereco/rex-negotiation/internal/config"
	"github.com/rubbereco/rex-negotiation/internal/events"
	"github.com/rubbereco/rex-negotiation/internal/httpapi"
	"github.com/rubbereco/rex-negotiation/internal/service"
	"github.com/rubbereco/rex-negotiation/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting rex-negotiation",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
	)

	// Initialize store
	var negotiationStore store.NegotiationStore
	var mongoClient *mongo.Client

	switch cfg.StoreType {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOpts := options.Client().ApplyURI(cfg.MongoURI)
		var mongoErr error
		mongoClient, mongoErr = mongo.Connect(ctx, clientOpts)
		if mongoErr != nil {
			slog.Error("failed to connect to mongodb", "error", mongoErr)
			os.Exit(1)
		}

		if err := mongoClient.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoNegotiationStore(mongoClient, cfg.MongoDB, cfg.MongoCollection)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		negotiationStore = mongoStore
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB, "collection", cfg.MongoCollection)

	case "firestore":
		var storeErr error
		negotiationStore, storeErr = store.NewFirestoreNegotiationStore(cfg.FirestoreProjectID, cfg.FirestoreCollection)
		if storeErr != nil {
			slog.Error("failed to initialize firestore", "error", storeErr)
			os.Exit(1)
		}
		slog.Info("using firestore store", "project", cfg.FirestoreProjectID, "collection", cfg.FirestoreCollection)

	default:
		negotiationStore = store.NewMemoryNegotiationStore()
		slog.Info("using in-memory store (development mode)")
	}
	defer func() { _ = negotiationStore.Close() }()
	if mongoClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}()
	}

	// Notifier: fan negotiation events out to the configured webhook.
	publisher := events.NewPublisher("rex-negotiation")
	if cfg.NotifyWebhookURL != "" {
		for _, eventType := range []string{
			events.EventProposalSubmitted,
			events.EventProposalAccepted,
			events.EventProposalRejected,
			events.EventNegotiationWithdrawn,
		} {
			publisher.RegisterEndpoint(eventType, cfg.NotifyWebhookURL)
		}
		slog.Info("notifier webhook registered", "url", cfg.NotifyWebhookURL)
	}

	// Caller identity
	var resolver httpapi.PartyResolver
	if cfg.IdentityURL != "" {
		resolver = clients.NewIdentityClient(cfg.IdentityURL)
		slog.Info("using identity service", "url", cfg.IdentityURL)
	} else {
		resolver = httpapi.LocalPartyResolver{}
		slog.Info("using local identity resolution (development mode)")
	}

	// Initialize service
	svc := service.New(negotiationStore, publisher)

	// Setup HTTP router
	router := httpapi.NewRouter(httpapi.NewHandlers(svc, resolver))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
