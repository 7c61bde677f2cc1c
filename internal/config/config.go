// Package config loads runtime configuration from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "HARVEST_DECK"
	// envConfigFile names a YAML file whose keys mirror the environment, e.g.
	// poll.interval or mysql.dsn.
	envConfigFile = "HARVEST_DECK_CONFIG"
)

// Config holds the plugin configuration. Stream Deck launch parameters are
// flags and are not part of it.
type Config struct {
	Harvest struct {
		BaseURL   string // default: https://api.harvestapp.com/v2
		UserAgent string
	}
	Poll struct {
		Interval  time.Duration // periodic refresh
		Grace     time.Duration // refresh-soon window
		SoonDelay time.Duration
	}
	MySQL struct {
		DSN string // optional; enables the totals export
	}
	HTTP struct {
		Addr string // optional; enables the status server, e.g. 127.0.0.1:8787
	}
	Log struct {
		Level string // debug, info, warn, error
	}
}

func defaults(v *viper.Viper) {
	v.SetDefault("harvest.base_url", "https://api.harvestapp.com/v2")
	v.SetDefault("harvest.user_agent", "harvest-deck")
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.grace", 2*time.Second)
	v.SetDefault("poll.soon_delay", 500*time.Millisecond)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("http.addr", "")
	v.SetDefault("log.level", "info")
}

// Load reads HARVEST_DECK_* variables, layered over the file named by
// HARVEST_DECK_CONFIG when set, layered over defaults.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envConfigFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config

	cfg.Harvest.BaseURL = strings.TrimRight(v.GetString("harvest.base_url"), "/")
	if u, err := url.Parse(cfg.Harvest.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, fmt.Errorf("harvest.base_url %q is not an absolute URL", cfg.Harvest.BaseURL)
	}
	cfg.Harvest.UserAgent = v.GetString("harvest.user_agent")

	var err error
	if cfg.Poll.Interval, err = duration(v, "poll.interval"); err != nil {
		return cfg, err
	}
	if cfg.Poll.Interval <= 0 {
		return cfg, errors.New("poll.interval must be positive")
	}
	if cfg.Poll.Grace, err = duration(v, "poll.grace"); err != nil {
		return cfg, err
	}
	if cfg.Poll.SoonDelay, err = duration(v, "poll.soon_delay"); err != nil {
		return cfg, err
	}
	if cfg.Poll.Grace < 0 || cfg.Poll.SoonDelay < 0 {
		return cfg, errors.New("poll.grace and poll.soon_delay must not be negative")
	}

	cfg.MySQL.DSN = v.GetString("mysql.dsn")
	cfg.HTTP.Addr = v.GetString("http.addr")

	cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return cfg, fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level)
	}
	return cfg, nil
}

// duration rejects values viper would silently turn into zero.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	switch raw := v.Get(key).(type) {
	case time.Duration:
		return raw, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return v.GetDuration(key), nil
	}
}
