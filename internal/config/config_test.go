// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkforge/eventstore/internal/config"
)

func TestLoad_RequiresDSN(t *testing.T) {
	_, err := config.Load("", nil)
	assert.Error(t, err)
}

func TestLoad_DefaultsApplyWhenUnset(t *testing.T) {
	t.Setenv("EVENTSTORE_DSN", "postgres://localhost/eventstore")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/eventstore", cfg.DSN)
	assert.Equal(t, 1000, cfg.ReadBatchSize)
	assert.Equal(t, 32, cfg.MaxInFlight)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.ConsumerTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("EVENTSTORE_DSN", "postgres://localhost/eventstore")
	t.Setenv("EVENTSTORE_MAX_IN_FLIGHT", "64")
	t.Setenv("EVENTSTORE_LOG_LEVEL", "debug")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MaxInFlight)
	assert.Equal(t, "debug", cfg.LogLevel)
	// untouched defaults survive alongside the overrides.
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestLoad_FileOverridesDefaultsButEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventstore.yaml")
	contents := "dsn: postgres://file/eventstore\nmax_retries: 9\nlog_level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("EVENTSTORE_LOG_LEVEL", "error")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/eventstore", cfg.DSN)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, "error", cfg.LogLevel, "env is a higher-precedence layer than the file")
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	t.Setenv("EVENTSTORE_DSN", "postgres://localhost/eventstore")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/eventstore", cfg.DSN)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Setenv("EVENTSTORE_DSN", "postgres://localhost/eventstore")
	t.Setenv("EVENTSTORE_MAX_IN_FLIGHT", "64")

	flags := pflag.NewFlagSet("eventstore", pflag.ContinueOnError)
	flags.Int("max_in_flight", 0, "")
	require.NoError(t, flags.Set("max_in_flight", "128"))

	cfg, err := config.Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.MaxInFlight)
}
