package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/planet-dump-go/internal/config"
)

func TestFlagsOverrideConfigFile(t *testing.T) {
	saved := cfg
	cfg = config.DefaultConfig()
	t.Cleanup(func() { cfg = saved })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "")
	fs.StringVar(&cfg.DBName, "db-name", cfg.DBName, "")
	fs.BoolVar(&cfg.History, "history", cfg.History, "")
	require.NoError(t, fs.Parse([]string{"--workers=3"}))

	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 9\ndb_name: osm_api\nhistory: true\n"), 0o644))

	require.NoError(t, loadConfigFile(fs, path))
	assert.Equal(t, 3, cfg.Workers, "command line wins")
	assert.Equal(t, "osm_api", cfg.DBName)
	assert.True(t, cfg.History)
}

func TestConfigFileErrors(t *testing.T) {
	saved := cfg
	cfg = config.DefaultConfig()
	t.Cleanup(func() { cfg = saved })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0o644))

	assert.Error(t, loadConfigFile(fs, path))
	assert.Error(t, loadConfigFile(fs, filepath.Join(t.TempDir(), "missing.yaml")))
}
