package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "shoplink"
	DefaultPGSSLMode     = "disable"
	DefaultLineAPIBase   = "https://api.line.me"
	DefaultLineDataBase  = "https://api-data.line.me"
	DefaultMaxBodyBytes  = 1 << 20 // 1 MiB
	DefaultSweepSchedule = "@every 1h"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Line      LineConfig      `toml:"line"`
	OCR       OCRConfig       `toml:"ocr"`
	Tenant    TenantConfig    `toml:"tenant"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Sweeper   SweeperConfig   `toml:"sweeper"`
	Media     MediaConfig     `toml:"media"`
}

// MediaConfig locates evidence storage on disk.
type MediaConfig struct {
	DataRoot string `toml:"data_root"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr         string `toml:"addr"`
	MaxBodyBytes int64  `toml:"max_body_bytes" validate:"gt=0"`
}

// AuthConfig secures the admin API. Webhook requests authenticate by
// signature instead and never carry a JWT.
type AuthConfig struct {
	JWTSecret     string        `toml:"jwt_secret"`
	TokenLifetime time.Duration `toml:"token_lifetime"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type LineConfig struct {
	APIBase        string        `toml:"api_base" validate:"url"`
	DataAPIBase    string        `toml:"data_api_base" validate:"url"`
	Timeout        time.Duration `toml:"timeout"`
	InviteBaseURL  string        `toml:"invite_base_url"`
	InviteSecret   string        `toml:"invite_secret"`
	InviteLifetime time.Duration `toml:"invite_lifetime"`
}

type OCRConfig struct {
	Endpoint      string        `toml:"endpoint"`
	Timeout       time.Duration `toml:"timeout"`
	Tolerance     float64       `toml:"tolerance" validate:"gte=0"`
	MinConfidence float64       `toml:"min_confidence" validate:"gte=0,lte=1"`
}

type TenantConfig struct {
	CacheTTL      time.Duration `toml:"cache_ttl"`
	DevFallbackID string        `toml:"dev_fallback_id"`
	MemoryStore   bool          `toml:"memory_store"`
}

// ReconcileConfig tunes the payment reconciliation windows. Every window is a
// bounded recency scan with client-side filtering, so ScanLimit caps how many
// recent rows are read before the predicate is applied.
type ReconcileConfig struct {
	AttachWindow  time.Duration `toml:"attach_window"`
	ConfirmWindow time.Duration `toml:"confirm_window"`
	ClaimLookback time.Duration `toml:"claim_lookback"`
	QuoteTTL      time.Duration `toml:"quote_ttl"`
	ScanLimit     int           `toml:"scan_limit" validate:"gt=0"`
	EventBudget   time.Duration `toml:"event_budget"`
}

type SweeperConfig struct {
	Schedule       string        `toml:"schedule"`
	DedupRetention time.Duration `toml:"dedup_retention"`
}

// Load reads the TOML config at path (or DefaultConfigPath when empty),
// applies defaults, and validates the result. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.validate()
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	applyFallbacks(&cfg)
	return cfg, cfg.validate()
}

// applyFallbacks re-fills zero values that a partial TOML file may have
// clobbered, so a config with only [postgres] keeps the rest of the defaults.
func applyFallbacks(cfg *Config) {
	def := defaults()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = def.Server.MaxBodyBytes
	}
	if cfg.Auth.TokenLifetime == 0 {
		cfg.Auth.TokenLifetime = def.Auth.TokenLifetime
	}
	if cfg.Line.APIBase == "" {
		cfg.Line.APIBase = def.Line.APIBase
	}
	if cfg.Line.DataAPIBase == "" {
		cfg.Line.DataAPIBase = def.Line.DataAPIBase
	}
	if cfg.Line.Timeout == 0 {
		cfg.Line.Timeout = def.Line.Timeout
	}
	if cfg.Line.InviteLifetime == 0 {
		cfg.Line.InviteLifetime = def.Line.InviteLifetime
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = def.OCR.Timeout
	}
	if cfg.OCR.Tolerance == 0 {
		cfg.OCR.Tolerance = def.OCR.Tolerance
	}
	if cfg.OCR.MinConfidence == 0 {
		cfg.OCR.MinConfidence = def.OCR.MinConfidence
	}
	if cfg.Tenant.CacheTTL == 0 {
		cfg.Tenant.CacheTTL = def.Tenant.CacheTTL
	}
	if cfg.Reconcile.AttachWindow == 0 {
		cfg.Reconcile.AttachWindow = def.Reconcile.AttachWindow
	}
	if cfg.Reconcile.ConfirmWindow == 0 {
		cfg.Reconcile.ConfirmWindow = def.Reconcile.ConfirmWindow
	}
	if cfg.Reconcile.ClaimLookback == 0 {
		cfg.Reconcile.ClaimLookback = def.Reconcile.ClaimLookback
	}
	if cfg.Reconcile.QuoteTTL == 0 {
		cfg.Reconcile.QuoteTTL = def.Reconcile.QuoteTTL
	}
	if cfg.Reconcile.ScanLimit == 0 {
		cfg.Reconcile.ScanLimit = def.Reconcile.ScanLimit
	}
	if cfg.Reconcile.EventBudget == 0 {
		cfg.Reconcile.EventBudget = def.Reconcile.EventBudget
	}
	if cfg.Sweeper.Schedule == "" {
		cfg.Sweeper.Schedule = def.Sweeper.Schedule
	}
	if cfg.Sweeper.DedupRetention == 0 {
		cfg.Sweeper.DedupRetention = def.Sweeper.DedupRetention
	}
	if cfg.Media.DataRoot == "" {
		cfg.Media.DataRoot = def.Media.DataRoot
	}
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:         DefaultHTTPAddr,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Auth: AuthConfig{
			TokenLifetime: 12 * time.Hour,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Line: LineConfig{
			APIBase:        DefaultLineAPIBase,
			DataAPIBase:    DefaultLineDataBase,
			Timeout:        10 * time.Second,
			InviteLifetime: 24 * time.Hour,
		},
		OCR: OCRConfig{
			Timeout:       15 * time.Second,
			Tolerance:     1.0,
			MinConfidence: 0.5,
		},
		Tenant: TenantConfig{
			CacheTTL: 5 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			AttachWindow:  60 * time.Minute,
			ConfirmWindow: 120 * time.Minute,
			ClaimLookback: 10 * time.Minute,
			QuoteTTL:      30 * time.Minute,
			ScanLimit:     50,
			EventBudget:   20 * time.Second,
		},
		Sweeper: SweeperConfig{
			Schedule:       DefaultSweepSchedule,
			DedupRetention: 72 * time.Hour,
		},
		Media: MediaConfig{
			DataRoot: "./data",
		},
	}
}

func (c Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
