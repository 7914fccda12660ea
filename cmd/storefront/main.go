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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	c "github.com/fjod/storefront-cart/internal/cache"
	"github.com/fjod/storefront-cart/internal/cart"
	"github.com/fjod/storefront-cart/internal/config"
	"github.com/fjod/storefront-cart/internal/credential"
	h "github.com/fjod/storefront-cart/internal/http"
	"github.com/fjod/storefront-cart/internal/logger"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/poller"
	"github.com/fjod/storefront-cart/internal/remote"
	"github.com/fjod/storefront-cart/internal/telemetry"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadStorefront(*configPath)
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

	client, err := remote.NewClient(cfg.Remote, log)
	if err != nil {
		log.Fatalf("Failed to create cart api client: %v", err)
	}

	var creds credential.Store = credential.NewMemoryStore("")
	if cfg.CredentialFile != "" {
		creds = credential.NewFileStore(cfg.CredentialFile)
	}

	feed := notify.NewFeed(0)
	opts := []cart.Option{
		cart.WithLogger(log),
		cart.WithNotifier(notify.Multi{feed, notify.LogNotifier{Log: log}}),
		cart.WithRefreshInterval(cfg.RefreshInterval),
		cart.WithFollowUpDelay(cfg.FollowUpDelay),
	}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis ping failed, running without snapshot cache")
		} else {
			log.Infof("Redis ping succeeded")
			opts = append(opts, cart.WithSnapshotCache(c.NewRedisCache(redisClient, cfg.Redis.TTL)))
		}
	}

	manager := cart.New(client, credential.Checked{Source: creds}, opts...)
	defer manager.Close()
	if err := manager.Start(ctx); err != nil {
		log.WithError(err).Warn("Initial cart load failed")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p := poller.NewPoller(cfg.Kafka, manager, log)
		defer p.Close()
		go p.Run(ctx)
		log.Infof("Listening for checkout events on %s", cfg.Kafka.Topic)
	}

	handler := h.NewCartHandler(manager, creds, feed, requestTimeout, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h.NewRouter(handler, log, requestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Storefront starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exited")
}
