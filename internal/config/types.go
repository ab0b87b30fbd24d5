package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Fetch    FetchConfig    `json:"fetch"`
	Delivery DeliveryConfig `json:"delivery"`
	Engine   EngineConfig   `json:"engine"`
	API      APIConfig      `json:"api,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./courtcast.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// FetchConfig points at the upstream inventory API.
type FetchConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"` // bearer token (do not log)
	// Timeout is a Go duration string bounding one fetch call.
	Timeout string `json:"timeout,omitempty"`
}

// DeliveryConfig controls the outbound chat gateway.
//
// All durations are Go duration strings (e.g. "500ms", "2s").
//
// Defaults (when fields are omitted/zero):
//   - retry_max: 2 (3 total attempts)
//   - retry_delay: "2s"
//   - attempt_timeout: "10s"
//   - rate_per_sec: 3
type DeliveryConfig struct {
	GatewayURL     string `json:"gateway_url"`
	Token          string `json:"token,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryDelay     string `json:"retry_delay,omitempty"`
	AttemptTimeout string `json:"attempt_timeout,omitempty"`

	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig enables the telegram destination adapter for
// "tg:<chat_id>" destinations.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}

// EngineConfig controls the scan trigger.
type EngineConfig struct {
	// Spec is a robfig/cron spec, e.g. "@every 2m" or "*/5 * * * *".
	Spec string `json:"spec"`
	// BatchSize caps due schedules per invocation. Default 50.
	BatchSize int `json:"batch_size,omitempty"`
}

// APIConfig controls the optional HTTP surface (/run, /healthz, /metrics).
//
// Prefer binding to localhost; the trigger endpoint is unauthenticated.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8090"
}

// Validate rejects configs the engine cannot run with. It is also the
// hook used by the watcher before publishing a reloaded config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(c.Fetch.BaseURL) == "" {
		return errors.New("fetch.base_url is required")
	}
	if strings.TrimSpace(c.Delivery.GatewayURL) == "" && !c.Delivery.Telegram.Enabled {
		return errors.New("delivery: gateway_url or telegram must be configured")
	}
	if c.Delivery.Telegram.Enabled && strings.TrimSpace(c.Delivery.Telegram.Token) == "" {
		return errors.New("delivery.telegram.token is required when telegram is enabled")
	}
	if c.Engine.BatchSize < 0 {
		return errors.New("engine.batch_size must be >= 0")
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":     c.Storage.BusyTimeout,
		"fetch.timeout":            c.Fetch.Timeout,
		"delivery.retry_delay":     c.Delivery.RetryDelay,
		"delivery.attempt_timeout": c.Delivery.AttemptTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
