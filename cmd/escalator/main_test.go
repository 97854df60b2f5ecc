package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bissquit/incident-escalator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configFileEnv = config.EnvPrefix + "CONFIG_FILE"

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestParseOptions_DotEnvSuppliesConfigPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte(configFileEnv+"=/etc/escalator/config.yaml\n"), 0o600))
	t.Chdir(dir)
	unsetEnv(t, configFileEnv)

	opts, err := parseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/escalator/config.yaml", opts.configPath)
	assert.Equal(t, "migrations", opts.migrationsDir)
	assert.False(t, opts.migrateOnly)
}

func TestParseOptions_FlagOverridesEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(configFileEnv, "/from/env.yaml")

	opts, err := parseOptions([]string{"-config", "/from/flag.yaml", "-migrate", "-migrations", "db/migrations"})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag.yaml", opts.configPath)
	assert.Equal(t, "db/migrations", opts.migrationsDir)
	assert.True(t, opts.migrateOnly)
}

func TestParseOptions_UnknownFlag(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := parseOptions([]string{"-bogus"})
	assert.Error(t, err)
}
