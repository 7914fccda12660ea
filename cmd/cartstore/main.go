package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/storefront-cart/internal/cartstore"
	"github.com/fjod/storefront-cart/internal/config"
	"github.com/fjod/storefront-cart/internal/logger"
	"github.com/fjod/storefront-cart/internal/poller"
	"github.com/fjod/storefront-cart/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	catalogPath := flag.String("catalog", "", "path to YAML product catalog")
	flag.Parse()

	cfg, err := config.LoadCartStore(*configPath, *catalogPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer provider: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("Error shutting down tracer provider")
		}
	}()

	var repo cartstore.Repository
	switch cfg.Backend {
	case "mongo":
		db, err := cartstore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer func() { _ = db.Client().Disconnect(context.Background()) }()
		repo = cartstore.NewMongoRepository(db)
		if ix, ok := repo.(interface{ CreateIndexes(context.Context) error }); ok {
			if err := ix.CreateIndexes(ctx); err != nil {
				log.Fatalf("Failed to create indexes: %v", err)
			}
		}
		log.Infof("Connected to MongoDB at %s", cfg.MongoURI)
	default:
		repo = cartstore.NewMemoryRepository()
		log.Info("Using in-memory cart storage")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p := poller.NewPoller(cfg.Kafka, cartstore.MemberClearer{Repo: repo, Log: log}, log)
		defer p.Close()
		go p.Run(ctx)
		log.Infof("Clearing carts on checkout events from %s", cfg.Kafka.Topic)
	}

	issuer := cartstore.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	handler := cartstore.NewHandler(repo, cartstore.NewCatalog(cfg.Catalog), issuer, log)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, "cartstore"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Cart store listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down cart store...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("Cart store stopped")
}
