package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/signadot/deltalog/system/deltad/storage"
)

// DefaultAddr is where the server listens unless configured otherwise.
const DefaultAddr = "localhost:1066"

// Spec holds the runtime specification for the server.
// Config contains the serializable settings loaded from a file.
type Spec struct {
	Config   *Config
	Registry *storage.Registry
	Log      *slog.Logger
}

// Config represents the server configuration file.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// Data is the data directory. Empty keeps everything in memory.
	Data string `yaml:"data,omitempty"`
	// Index is the log index backend: mem, file or sqlite.
	Index string `yaml:"index,omitempty"`
	// Store is the patch store: mem or file.
	Store string `yaml:"store,omitempty"`
	// Datasets are created at startup unless a dataset with the same
	// name already exists.
	Datasets []DatasetConfig `yaml:"datasets,omitempty"`
	// RequireRegistration makes mutating requests carry the id of a
	// registered client. Defaults to true.
	RequireRegistration *bool `yaml:"requireRegistration,omitempty"`
}

type DatasetConfig struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri,omitempty"`
}

// LoadConfig loads a YAML configuration file. Fields it does not set keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns an in-memory configuration on DefaultAddr.
func DefaultConfig() *Config {
	return &Config{Addr: DefaultAddr}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if err := c.registryOptions(nil).Validate(); err != nil {
		return err
	}
	names := map[string]bool{}
	for i, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("datasets[%d]: name is required", i)
		}
		if names[ds.Name] {
			return fmt.Errorf("datasets[%d]: duplicate name %q", i, ds.Name)
		}
		names[ds.Name] = true
	}
	return nil
}

func (c *Config) requireRegistration() bool {
	return c.RequireRegistration == nil || *c.RequireRegistration
}

func (c *Config) registryOptions(log *slog.Logger) storage.Options {
	return storage.Options{Root: c.Data, Index: c.Index, Store: c.Store, Log: log}
}

// OpenRegistry opens the registry c describes and creates the configured
// datasets that do not exist yet.
func OpenRegistry(c *Config, log *slog.Logger) (*storage.Registry, error) {
	reg, err := storage.OpenRegistry(c.registryOptions(log))
	if err != nil {
		return nil, err
	}
	for _, dc := range c.Datasets {
		if reg.GetByName(dc.Name) != nil {
			continue
		}
		if _, err := reg.Create(dc.Name, dc.URI); err != nil {
			reg.Close()
			return nil, fmt.Errorf("dataset %q: %w", dc.Name, err)
		}
	}
	return reg, nil
}
