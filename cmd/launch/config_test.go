package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "script: train.py\n"))
		require.NoError(t, err)
		assert.Equal(t, "python3", cfg.Python)
		assert.Equal(t, "oneflow.distributed.launch", cfg.LauncherModule)
		assert.Equal(t, 1, cfg.DevicesPerNode)
		assert.Equal(t, 1, cfg.NumNodes)
		assert.Equal(t, 0, cfg.NodeRank)
		assert.Equal(t, 17788, cfg.MasterPort)
		assert.Equal(t, "train.py", cfg.Script)
	})

	t.Run("parses a full config", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
python: python3.11
devicesPerNode: 8
numNodes: 4
nodeRank: 2
masterAddr: 10.0.0.1
masterPort: 29500
debug: true
script: train.py
scriptArgs: ["--epochs", "10"]
env:
  WORLD_SIZE: "32"
workDir: /srv/training
`))
		require.NoError(t, err)
		assert.Equal(t, "python3.11", cfg.Python)
		assert.Equal(t, 8, cfg.DevicesPerNode)
		assert.Equal(t, 4, cfg.NumNodes)
		assert.Equal(t, 2, cfg.NodeRank)
		assert.Equal(t, "10.0.0.1", cfg.MasterAddr)
		assert.Equal(t, 29500, cfg.MasterPort)
		assert.True(t, cfg.Debug)
		assert.Equal(t, []string{"--epochs", "10"}, cfg.ScriptArgs)
		assert.Equal(t, map[string]string{"WORLD_SIZE": "32"}, cfg.Env)
		assert.Equal(t, "/srv/training", cfg.WorkDir)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "script: train.py\ndevices: 8\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "devices")
	})

	t.Run("rejects invalid configs", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "devicesPerNode: 4\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "script is required")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Script = "train.py"
		return cfg
	}

	t.Run("accepts the defaults plus a script", func(t *testing.T) {
		require.NoError(t, base().validate())
	})

	for name, mutate := range map[string]func(*Config){
		"missing script":             func(c *Config) { c.Script = "" },
		"zero devices":               func(c *Config) { c.DevicesPerNode = 0 },
		"zero nodes":                 func(c *Config) { c.NumNodes = 0 },
		"negative rank":              func(c *Config) { c.NodeRank = -1 },
		"rank beyond the node count": func(c *Config) { c.NumNodes = 2; c.NodeRank = 2; c.MasterAddr = "10.0.0.1" },
		"multi-node without master":  func(c *Config) { c.NumNodes = 2 },
		"port out of range":          func(c *Config) { c.MasterPort = 70000 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestConfigArgv(t *testing.T) {
	cfg := &Config{
		Python:         "python3",
		LauncherModule: "oneflow.distributed.launch",
		DevicesPerNode: 8,
		NumNodes:       4,
		NodeRank:       2,
		MasterAddr:     "10.0.0.1",
		MasterPort:     29500,
		Script:         "train.py",
		ScriptArgs:     []string{"--epochs", "10"},
	}
	assert.Equal(t, []string{
		"python3",
		"-m", "oneflow.distributed.launch",
		"--nproc_per_node", "8",
		"--nnodes", "4",
		"--node_rank", "2",
		"--master_addr", "10.0.0.1",
		"--master_port", "29500",
		"train.py",
		"--epochs", "10",
	}, cfg.Argv())

	t.Run("single node defaults the master addr", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Script = "train.py"
		argv := cfg.Argv()
		idx := slices.Index(argv, "--master_addr")
		require.GreaterOrEqual(t, idx, 0)
		assert.Equal(t, "127.0.0.1", argv[idx+1])
	})
}

func TestConfigEnviron(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("HOME", "/home/trainer")
	t.Setenv("PYTHONPATH", "/opt/py")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "must-not-leak")

	cfg := &Config{
		Debug: true,
		Env:   map[string]string{"WORLD_SIZE": "8"},
	}
	assert.Equal(t, []string{
		"HOME=/home/trainer",
		"ONEFLOW_DEBUG_MODE=1",
		"PATH=/usr/bin",
		"PYTHONPATH=/opt/py",
		"WORLD_SIZE=8",
	}, cfg.Environ())

	for _, kv := range cfg.Environ() {
		assert.False(t, strings.HasPrefix(kv, "AWS_"), "host environment leaked: %s", kv)
	}

	t.Run("declared variables win over passthrough", func(t *testing.T) {
		cfg := &Config{Env: map[string]string{"PATH": "/custom/bin"}}
		assert.Contains(t, cfg.Environ(), "PATH=/custom/bin")
	})
}
