package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"popfork/consensus"
	"popfork/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, consensus.DefaultPopParams(), c.PopParams())

	opts, err := c.SyncOptions()
	require.NoError(t, err)
	require.Equal(t, 50*time.Millisecond, opts.Interval)
	require.Equal(t, time.Minute, opts.Timeout)
	require.True(t, opts.Flush)

	require.Equal(t, "popnode", c.ChainConfig().Name)
	require.Equal(t, 2000, c.RelayParams().MaxHeaders)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(c *Config){
		"log format":     func(c *Config) { c.Logging.Format = "xml" },
		"log level":      func(c *Config) { c.Logging.Level = "loud" },
		"storage type":   func(c *Config) { c.Storage.Type = "etcd" },
		"bolt path":      func(c *Config) { c.Storage.Type = StorageBolt },
		"chain name":     func(c *Config) { c.Chain.Name = "" },
		"identifier":     func(c *Config) { c.Pop.Identifier = 0 },
		"headers cap":    func(c *Config) { c.P2P.MaxHeaders = 5000 },
		"sync interval":  func(c *Config) { c.Sync.Interval = "soon" },
		"negative reorg": func(c *Config) { c.Chain.MaxReorgDepth = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			err := c.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.BadRequest))
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config", "popnode.toml")
	c := DefaultConfig()
	c.Chain.Name = "alpha"
	c.Chain.MaxReorgDepth = 12
	c.Pop.SettlementInterval = 20
	c.Storage = Storage{Type: StorageBolt, Path: "/var/lib/popnode"}
	c.Sync.Timeout = "5s"
	require.NoError(t, StoreConfig(c, file))

	loaded, err := LoadConfig(file)
	require.NoError(t, err)
	require.Equal(t, c, loaded)
}

func TestConfigEnvOverride(t *testing.T) {
	file := filepath.Join(t.TempDir(), "popnode.toml")
	require.NoError(t, StoreConfig(DefaultConfig(), file))

	t.Setenv("POPNODE_LOGGING_LEVEL", "debug")
	t.Setenv("POPNODE_CHAIN_MAX_REORG_DEPTH", "7")
	loaded, err := LoadConfig(file)
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.Logging.Level)
	require.Equal(t, 7, loaded.Chain.MaxReorgDepth)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.True(t, errors.Is(err, errors.BadRequest))
}
