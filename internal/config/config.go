// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the store's runtime configuration from environment
// variables, an optional YAML file, and CLI flag overrides, using the
// koanf stack. The teacher reads configuration ambiently via
// os.Getenv("DATABASE_URL") in cmd/holomush/{migrate,seed}.go; this package
// generalizes that to a layered loader since the store has many more knobs
// than a single DSN.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the store's runtime configuration (spec.md §6 / SPEC_FULL.md §6
// "Configuration"). Serializer is intentionally absent: the caller
// constructs its own serializer.Codec in code, since koanf has no way to
// load a Go type registry from a string.
type Config struct {
	DSN               string `koanf:"dsn"`
	EnableHardDeletes bool   `koanf:"enable_hard_deletes"`
	ReadBatchSize     int    `koanf:"read_batch_size"`
	SchemaPrefix      string `koanf:"schema_prefix"`

	MaxInFlight               int           `koanf:"max_in_flight"`
	MaxRetries                int           `koanf:"max_retries"`
	SubscribeAckTimeout       time.Duration `koanf:"subscribe_ack_timeout"`
	ConsumerTimeout           time.Duration `koanf:"consumer_timeout"`
	ConsumerHeartbeatInterval time.Duration `koanf:"consumer_heartbeat_interval"`

	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`
}

func defaults() Config {
	return Config{
		ReadBatchSize:             1000,
		MaxInFlight:               32,
		MaxRetries:                5,
		SubscribeAckTimeout:       30 * time.Second,
		ConsumerTimeout:           30 * time.Second,
		ConsumerHeartbeatInterval: 10 * time.Second,
		LogLevel:                  "info",
		MetricsAddr:               ":9090",
	}
}

// envKeyToKoanf maps EVENTSTORE_READ_BATCH_SIZE -> read_batch_size by
// trimming the prefix and lowercasing; underscores are kept, so every key
// stays at the top level.
func envKeyToKoanf(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ToLower(s)
	}
}

// Load builds a Config by layering, lowest to highest precedence: built-in
// defaults, an optional YAML file at path (skipped if path is empty or the
// file does not exist), environment variables prefixed with "EVENTSTORE_",
// then CLI flags bound via flags (nil to skip). Later layers override
// earlier ones field by field.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
			}
		} else if !os.IsNotExist(statErr) {
			return Config{}, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(statErr)
		}
	}

	if err := k.Load(env.Provider("EVENTSTORE_", ".", envKeyToKoanf("EVENTSTORE_")), nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	// Start from defaults and let koanf's Unmarshal overwrite only the keys
	// actually present across the loaded layers, so an unset env var or
	// config key falls back to the default rather than a zero value.
	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DSN == "" {
		return Config{}, oops.Code("CONFIG_INVALID").Errorf("dsn is required (set EVENTSTORE_DSN or the dsn config key)")
	}
	return cfg, nil
}
