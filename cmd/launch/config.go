package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config describes a single-node slice of a distributed training launch.
// The same file is shipped to every node; only nodeRank differs per node.
type Config struct {
	Python         string            `yaml:"python"`
	LauncherModule string            `yaml:"launcherModule"`
	DevicesPerNode int               `yaml:"devicesPerNode"`
	NumNodes       int               `yaml:"numNodes"`
	NodeRank       int               `yaml:"nodeRank"`
	MasterAddr     string            `yaml:"masterAddr"`
	MasterPort     int               `yaml:"masterPort"`
	Debug          bool              `yaml:"debug"`
	Script         string            `yaml:"script"`
	ScriptArgs     []string          `yaml:"scriptArgs"`
	Env            map[string]string `yaml:"env"`
	WorkDir        string            `yaml:"workDir"`
}

func defaultConfig() *Config {
	return &Config{
		Python:         "python3",
		LauncherModule: "oneflow.distributed.launch",
		DevicesPerNode: 1,
		NumNodes:       1,
		MasterPort:     17788,
	}
}

// LoadConfig reads and validates a launch config. Unknown fields are an
// error, so a typo in a field name fails the launch instead of silently
// running with a default.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Script == "" {
		return errors.New("script is required")
	}
	if c.DevicesPerNode < 1 {
		return fmt.Errorf("devicesPerNode must be at least 1, got %d", c.DevicesPerNode)
	}
	if c.NumNodes < 1 {
		return fmt.Errorf("numNodes must be at least 1, got %d", c.NumNodes)
	}
	if c.NodeRank < 0 || c.NodeRank >= c.NumNodes {
		return fmt.Errorf("nodeRank must be in [0, %d), got %d", c.NumNodes, c.NodeRank)
	}
	if c.NumNodes > 1 && c.MasterAddr == "" {
		return errors.New("masterAddr is required for multi-node launches")
	}
	if c.MasterPort < 1 || c.MasterPort > 65535 {
		return fmt.Errorf("masterPort must be a valid port, got %d", c.MasterPort)
	}
	return nil
}

// Argv returns the full command line for this node's launch.
func (c *Config) Argv() []string {
	addr := c.MasterAddr
	if addr == "" {
		addr = "127.0.0.1"
	}
	argv := []string{
		c.Python,
		"-m", c.LauncherModule,
		"--nproc_per_node", strconv.Itoa(c.DevicesPerNode),
		"--nnodes", strconv.Itoa(c.NumNodes),
		"--node_rank", strconv.Itoa(c.NodeRank),
		"--master_addr", addr,
		"--master_port", strconv.Itoa(c.MasterPort),
		c.Script,
	}
	return append(argv, c.ScriptArgs...)
}

// Environ builds the child environment. It is an allowlist: only declared
// variables plus a small passthrough set are visible, the rest of the host
// environment is not inherited. Sorted so launches are reproducible.
func (c *Config) Environ() []string {
	env := make(map[string]string, len(c.Env)+4)
	for _, key := range []string{"PATH", "HOME", "PYTHONPATH"} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	for k, v := range c.Env {
		env[k] = v
	}
	if c.Debug {
		env["ONEFLOW_DEBUG_MODE"] = "1"
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	environ := make([]string, 0, len(keys))
	for _, k := range keys {
		environ = append(environ, k+"="+env[k])
	}
	return environ
}
