// Package config loads runtime configuration from defaults, an optional YAML
// file and CARDPRICE_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration environment variable
const EnvPrefix = "CARDPRICE"

// Loader hydrates the configuration with env > file > default precedence
type Loader struct {
	envPrefix string
	dotenv    []string
	files     []string
}

// NewLoader prepares a loader. Files that do not exist are an error.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{envPrefix: envPrefix, files: files}
}

// WithDotenv loads the given .env files into the process environment before
// reading env overrides. Missing .env files are ignored.
func (l *Loader) WithDotenv(paths ...string) *Loader {
	l.dotenv = append(l.dotenv, paths...)
	return l
}

// Load assembles the effective configuration
func (l *Loader) Load() (Config, error) {
	for _, path := range l.dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		prefix := l.envPrefix + "_"
		transform := func(s string) string {
			// Double underscores nest (CARDPRICE_SCRYFALL__MIN_INTERVAL -> scryfall.mininterval).
			key := strings.TrimPrefix(s, prefix)
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"port":            cfg.Server.Port,
			"corsorigins":     cfg.Server.CORSOrigins,
			"shutdowntimeout": cfg.Server.ShutdownTimeout.String(),
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
		"scryfall": map[string]any{
			"baseurl":      cfg.Scryfall.BaseURL,
			"mininterval":  cfg.Scryfall.MinInterval.String(),
			"maxretries":   cfg.Scryfall.MaxRetries,
			"retrybackoff": cfg.Scryfall.RetryBackoff.String(),
			"maxpages":     cfg.Scryfall.MaxPages,
			"useragent":    cfg.Scryfall.UserAgent,
			"timeout":      cfg.Scryfall.Timeout.String(),
		},
		"tcgcsv": map[string]any{
			"baseurl":  cfg.TCGCSV.BaseURL,
			"category": cfg.TCGCSV.Category,
			"timeout":  cfg.TCGCSV.Timeout.String(),
		},
		"rates": map[string]any{
			"url": cfg.Rates.URL,
		},
		"cache": map[string]any{
			"resultttl":     cfg.Cache.ResultTTL.String(),
			"resultmax":     cfg.Cache.ResultMax,
			"printingttl":   cfg.Cache.PrintingTTL.String(),
			"printingmax":   cfg.Cache.PrintingMax,
			"groupttl":      cfg.Cache.GroupTTL.String(),
			"groupmax":      cfg.Cache.GroupMax,
			"flushinterval": cfg.Cache.FlushInterval.String(),
		},
		"store": map[string]any{
			"driver":     cfg.Store.Driver,
			"sqlitepath": cfg.Store.SQLitePath,
			"valkey": map[string]any{
				"address":  cfg.Store.Valkey.Address,
				"username": cfg.Store.Valkey.Username,
				"password": cfg.Store.Valkey.Password,
				"db":       cfg.Store.Valkey.DB,
				"prefix":   cfg.Store.Valkey.Prefix,
			},
			"postgresdsn": cfg.Store.PostgresDSN,
		},
		"diagnostics": map[string]any{
			"enabled": cfg.Diagnostics.Enabled,
		},
	}
}
