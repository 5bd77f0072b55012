package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Cache    CacheConfig
	Database DatabaseConfig
	LotDB    LotDBConfig
	Auction  AuctionConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"bidhub-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// CacheConfig holds Redis cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"`
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"10s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds MySQL connection settings (user accounts).
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"bidhub"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// LotDBConfig holds lot store settings.
type LotDBConfig struct {
	Type string `envconfig:"LOT_DB_TYPE" default:"sqlite"` // sqlite, mongodb, or memory
	Path string `envconfig:"LOT_DB_PATH" default:"./data/lots.db"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"bidhub"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"lots"`
}

// AuctionConfig holds the bidding and reconciliation tunables.
type AuctionConfig struct {
	// PercentAutoBid is the integer percentage increment applied when a
	// proxy bid outbids the current leader (5 means a 1.05x multiplier).
	PercentAutoBid int `envconfig:"PERCENT_AUTOBID" default:"5"`

	// SnipeWindow is how close to the deadline a bid must arrive to
	// trigger an extension; SnipeExtension is the new time remaining.
	SnipeWindow    time.Duration `envconfig:"AUCTION_SNIPE_WINDOW" default:"3m"`
	SnipeExtension time.Duration `envconfig:"AUCTION_SNIPE_EXTENSION" default:"3m"`

	// ReconcileInterval is how often the proxy-bid sweep runs.
	ReconcileInterval time.Duration `envconfig:"AUCTION_RECONCILE_INTERVAL" default:"1m"`

	// NoBidExtension is how far an expired lot with zero bids is pushed
	// forward instead of closing.
	NoBidExtension time.Duration `envconfig:"AUCTION_NO_BID_EXTENSION" default:"24h"`

	// BidHideGrace is added to the original deadline to compute the
	// display grace window on close.
	BidHideGrace time.Duration `envconfig:"AUCTION_BID_HIDE_GRACE" default:"10m"`

	DefaultPageLimit int `envconfig:"AUCTION_PAGE_LIMIT" default:"20"`
	MaxPageLimit     int `envconfig:"AUCTION_MAX_PAGE_LIMIT" default:"100"`
}

// EventsConfig holds NATS settings for bid event publishing.
type EventsConfig struct {
	NATSURL string `envconfig:"NATS_URL" default:""`
}

// Multiplier returns the proxy-bid increment as an exact decimal factor,
// e.g. PERCENT_AUTOBID=5 yields 1.05.
func (a *AuctionConfig) Multiplier() decimal.Decimal {
	return decimal.NewFromInt(int64(100 + a.PercentAutoBid)).
		Div(decimal.NewFromInt(100))
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
