package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fjod/storefront-cart/internal/cache"
	"github.com/fjod/storefront-cart/internal/circuitbreaker"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/logger"
	"github.com/fjod/storefront-cart/internal/poller"
	"github.com/fjod/storefront-cart/internal/remote"
	"github.com/fjod/storefront-cart/internal/telemetry"
)

// Storefront configures the process that hosts the cart manager.
type Storefront struct {
	Port            string           `yaml:"port"`
	CredentialFile  string           `yaml:"credential_file"`
	RefreshInterval time.Duration    `yaml:"refresh_interval"`
	FollowUpDelay   time.Duration    `yaml:"follow_up_delay"`
	Log             logger.Config    `yaml:"log"`
	Remote          remote.Config    `yaml:"remote"`
	Redis           cache.Config     `yaml:"redis"`
	Kafka           poller.Config    `yaml:"kafka"`
	Telemetry       telemetry.Config `yaml:"telemetry"`
}

// CartStore configures the reference cart API.
type CartStore struct {
	Port      string           `yaml:"port"`
	Backend   string           `yaml:"backend"` // "mongo" or "memory"
	MongoURI  string           `yaml:"mongo_uri"`
	MongoDB   string           `yaml:"mongo_db"`
	JWTSecret string           `yaml:"jwt_secret"`
	TokenTTL  time.Duration    `yaml:"token_ttl"`
	Catalog   []domain.Product `yaml:"-"`
	Kafka     poller.Config    `yaml:"kafka"`
	Log       logger.Config    `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

func defaultStorefront() Storefront {
	return Storefront{
		Port:            "8080",
		RefreshInterval: 120 * time.Second,
		FollowUpDelay:   300 * time.Millisecond,
		Log:             logger.Config{Level: "info", Format: "json"},
		Remote: remote.Config{
			BaseURL: "http://localhost:8081",
			Timeout: 10 * time.Second,
			Breaker: circuitbreaker.DefaultConfig(),
		},
		Redis:     cache.Config{TTL: 15 * time.Minute},
		Kafka:     poller.Config{Topic: poller.DefaultTopic, GroupID: poller.DefaultGroupID},
		Telemetry: telemetry.Config{ServiceName: "storefront"},
	}
}

func defaultCartStore() CartStore {
	return CartStore{
		Port:      "8081",
		Backend:   "memory",
		MongoURI:  "mongodb://localhost:27017",
		MongoDB:   "cartdb",
		TokenTTL:  24 * time.Hour,
		Kafka:     poller.Config{Topic: poller.DefaultTopic, GroupID: "cartstore-consumer"},
		Log:       logger.Config{Level: "info", Format: "json"},
		Telemetry: telemetry.Config{ServiceName: "cartstore"},
	}
}

// LoadStorefront reads the optional YAML file at path, then .env, then the
// environment. Later sources win.
func LoadStorefront(path string) (Storefront, error) {
	cfg := defaultStorefront()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	loadDotEnv()

	cfg.Port = getEnv("STOREFRONT_PORT", cfg.Port)
	cfg.CredentialFile = getEnv("CART_CREDENTIAL_FILE", cfg.CredentialFile)
	cfg.RefreshInterval = getDuration("CART_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.FollowUpDelay = getDuration("CART_FOLLOW_UP_DELAY", cfg.FollowUpDelay)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Remote.BaseURL = getEnv("CART_API_URL", cfg.Remote.BaseURL)
	cfg.Remote.Timeout = getDuration("CART_API_TIMEOUT", cfg.Remote.Timeout)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.TTL = getDuration("REDIS_TTL", cfg.Redis.TTL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_CHECKOUT_TOPIC", cfg.Kafka.Topic)
	cfg.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)

	if cfg.Remote.BaseURL == "" {
		return cfg, errors.New("cart api url is required")
	}
	return cfg, nil
}

// LoadCartStore reads the cart API configuration the same way as
// LoadStorefront. catalogPath, when set, points to a YAML product list.
func LoadCartStore(path, catalogPath string) (CartStore, error) {
	cfg := defaultCartStore()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	loadDotEnv()

	cfg.Port = getEnv("CARTSTORE_PORT", cfg.Port)
	cfg.Backend = getEnv("CARTSTORE_BACKEND", cfg.Backend)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDB = getEnv("MONGO_DB_NAME", cfg.MongoDB)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getDuration("JWT_TTL", cfg.TokenTTL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_CHECKOUT_TOPIC", cfg.Kafka.Topic)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)

	catalogPath = getEnv("CARTSTORE_CATALOG", catalogPath)
	if catalogPath != "" {
		catalog, err := LoadCatalog(catalogPath)
		if err != nil {
			return cfg, err
		}
		cfg.Catalog = catalog
	}

	switch cfg.Backend {
	case "mongo", "memory":
	default:
		return cfg, fmt.Errorf("unknown cartstore backend %q", cfg.Backend)
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

type catalogEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Description string `yaml:"description"`
	ISBN        string `yaml:"isbn"`
	Image       string `yaml:"image"`
	Category    string `yaml:"category"`
}

// LoadCatalog reads a YAML list of products.
func LoadCatalog(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var entries []catalogEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	products := make([]domain.Product, 0, len(entries))
	for _, e := range entries {
		id := domain.NormalizeProductID(e.ID)
		if id.IsZero() {
			return nil, fmt.Errorf("catalog entry %q has no id", e.Name)
		}
		price, err := parsePrice(e.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", id, err)
		}
		products = append(products, domain.Product{
			ID:          id,
			Name:        e.Name,
			Price:       price,
			Description: e.Description,
			ISBN:        e.ISBN,
			Image:       e.Image,
			Category:    e.Category,
		})
	}
	return products, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", raw)
	}
	return price, nil
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadDotEnv loads .env when present. Variables already set in the
// environment are not overwritten.
func loadDotEnv() {
	_ = godotenv.Load()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
