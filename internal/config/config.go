// Package config loads mchconfig settings from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mscrnt/mchconfig/pkg/agent"
	"github.com/mscrnt/mchconfig/pkg/pciconf"
)

// Backends accepted in Config.Backend
const (
	BackendPort   = "port"
	BackendSysfs  = "sysfs"
	BackendReplay = "replay"
)

// Config is the merged configuration of every subcommand
type Config struct {
	Backend   string      `yaml:"backend"`
	Replay    string      `yaml:"replay,omitempty"`
	SysfsRoot string      `yaml:"sysfs_root,omitempty"`
	DBPath    string      `yaml:"db_path,omitempty"`
	LogFile   string      `yaml:"log_file,omitempty"`
	Verbose   bool        `yaml:"verbose,omitempty"`
	Agent     AgentConfig `yaml:"agent"`
}

// AgentConfig covers both ends of the agent connection
type AgentConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port"`
	CertFile string `yaml:"cert,omitempty"`
	KeyFile  string `yaml:"key,omitempty"`
	CAFile   string `yaml:"ca,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`
}

// Server converts to the agent server configuration
func (a AgentConfig) Server() agent.Config {
	return agent.Config{
		Host:     a.Host,
		Port:     a.Port,
		CertFile: a.CertFile,
		KeyFile:  a.KeyFile,
		CAFile:   a.CAFile,
		LogFile:  a.LogFile,
	}
}

// Client converts to the agent client configuration for host
func (a AgentConfig) Client(host string) agent.ClientConfig {
	return agent.ClientConfig{
		Host:     host,
		Port:     a.Port,
		CertFile: a.CertFile,
		KeyFile:  a.KeyFile,
		CAFile:   a.CAFile,
	}
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:   BackendPort,
		SysfsRoot: pciconf.DefaultSysfsRoot,
		DBPath:    DefaultDBPath(),
		Agent: AgentConfig{
			Port: agent.DefaultPort,
		},
	}
}

// DefaultDBPath returns ~/.mchconfig/history.db, creating the directory.
// It falls back to the working directory when there is no usable home.
func DefaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}

	dir := filepath.Join(homeDir, ".mchconfig")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "history.db"
	}
	return filepath.Join(dir, "history.db")
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is the user's --config flag
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MCHCONFIG_* variables
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"MCHCONFIG_BACKEND":    &c.Backend,
		"MCHCONFIG_REPLAY":     &c.Replay,
		"MCHCONFIG_DB_PATH":    &c.DBPath,
		"MCHCONFIG_LOG_FILE":   &c.LogFile,
		"MCHCONFIG_AGENT_CERT": &c.Agent.CertFile,
		"MCHCONFIG_AGENT_KEY":  &c.Agent.KeyFile,
		"MCHCONFIG_AGENT_CA":   &c.Agent.CAFile,
	}
	for name, field := range str {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}

	if v, ok := os.LookupEnv("MCHCONFIG_AGENT_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MCHCONFIG_AGENT_PORT %q: %w", v, err)
		}
		c.Agent.Port = port
	}
	return nil
}

// Validate checks the settings every subcommand relies on
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPort, BackendSysfs:
	case BackendReplay:
		if c.Replay == "" {
			return fmt.Errorf("backend %q needs a replay fixture", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendPort, BackendSysfs, BackendReplay)
	}

	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent port: %d", c.Agent.Port)
	}
	return nil
}
