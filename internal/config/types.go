package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Scryfall    ScryfallConfig    `koanf:"scryfall"`
	TCGCSV      TCGCSVConfig      `koanf:"tcgcsv"`
	Rates       RatesConfig       `koanf:"rates"`
	Cache       CacheConfig       `koanf:"cache"`
	Store       StoreConfig       `koanf:"store"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	CORSOrigins     []string      `koanf:"corsorigins"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

// ScryfallConfig controls the primary provider client and its request queue
type ScryfallConfig struct {
	BaseURL      string        `koanf:"baseurl"`
	MinInterval  time.Duration `koanf:"mininterval"`
	MaxRetries   int           `koanf:"maxretries"`
	RetryBackoff time.Duration `koanf:"retrybackoff"`
	MaxPages     int           `koanf:"maxpages"`
	UserAgent    string        `koanf:"useragent"`
	Timeout      time.Duration `koanf:"timeout"`
}

type TCGCSVConfig struct {
	BaseURL  string        `koanf:"baseurl"`
	Category int           `koanf:"category"`
	Timeout  time.Duration `koanf:"timeout"`
}

type RatesConfig struct {
	URL string `koanf:"url"`
}

// CacheConfig sizes the persisted caches
type CacheConfig struct {
	ResultTTL     time.Duration `koanf:"resultttl"`
	ResultMax     int           `koanf:"resultmax"`
	PrintingTTL   time.Duration `koanf:"printingttl"`
	PrintingMax   int           `koanf:"printingmax"`
	GroupTTL      time.Duration `koanf:"groupttl"`
	GroupMax      int           `koanf:"groupmax"`
	FlushInterval time.Duration `koanf:"flushinterval"`
}

type StoreConfig struct {
	Driver      string       `koanf:"driver"`
	SQLitePath  string       `koanf:"sqlitepath"`
	Valkey      ValkeyConfig `koanf:"valkey"`
	PostgresDSN string       `koanf:"postgresdsn"`
}

type ValkeyConfig struct {
	Address  string `koanf:"address"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// DiagnosticsConfig enables reporting of upstream failures
type DiagnosticsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Scryfall: ScryfallConfig{
			BaseURL:      "https://api.scryfall.com",
			MinInterval:  100 * time.Millisecond,
			MaxRetries:   2,
			RetryBackoff: 500 * time.Millisecond,
			MaxPages:     5,
			UserAgent:    "cardprice/1.0",
			Timeout:      10 * time.Second,
		},
		TCGCSV: TCGCSVConfig{
			BaseURL:  "https://tcgcsv.com",
			Category: 1,
			Timeout:  15 * time.Second,
		},
		Rates: RatesConfig{
			URL: "https://open.er-api.com/v6/latest/USD",
		},
		Cache: CacheConfig{
			ResultTTL:     30 * time.Minute,
			ResultMax:     2000,
			PrintingTTL:   30 * time.Minute,
			PrintingMax:   500,
			GroupTTL:      4 * time.Hour,
			GroupMax:      100,
			FlushInterval: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./cardprice.db",
			Valkey: ValkeyConfig{
				Prefix: "cardprice:snapshot:",
			},
		},
	}
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Scryfall.MinInterval <= 0 {
		errs = append(errs, errors.New("scryfall.mininterval must be positive"))
	}
	if c.Scryfall.MaxRetries < 0 {
		errs = append(errs, errors.New("scryfall.maxretries must not be negative"))
	}
	if c.Scryfall.MaxPages <= 0 {
		errs = append(errs, errors.New("scryfall.maxpages must be positive"))
	}
	for name, v := range map[string]int{
		"cache.resultmax":   c.Cache.ResultMax,
		"cache.printingmax": c.Cache.PrintingMax,
		"cache.groupmax":    c.Cache.GroupMax,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, v := range map[string]time.Duration{
		"cache.resultttl":     c.Cache.ResultTTL,
		"cache.printingttl":   c.Cache.PrintingTTL,
		"cache.groupttl":      c.Cache.GroupTTL,
		"cache.flushinterval": c.Cache.FlushInterval,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlitepath required for sqlite driver"))
		}
	case "valkey":
		if c.Store.Valkey.Address == "" {
			errs = append(errs, errors.New("store.valkey.address required for valkey driver"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgresdsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be sqlite, valkey or postgres", c.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
