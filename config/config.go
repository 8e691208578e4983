// Package config loads the registry server's optional YAML configuration file.
// Command-line flags and environment variables take precedence over values
// read here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/registry"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// File mirrors the YAML configuration layout.
type File struct {
	Owner  string `yaml:"owner"`
	Policy string `yaml:"policy"`

	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	StateFile   string `yaml:"state_file"`

	Storage []string `yaml:"storage"`

	Identity Identity `yaml:"identity"`
	Log      Log      `yaml:"log"`

	AuditCapacity int           `yaml:"audit_capacity"`
	MaxClockSkew  time.Duration `yaml:"max_clock_skew"`
}

// Identity configures delegation of submitter checks to another registry.
type Identity struct {
	OracleURL        string `yaml:"oracle_url"`
	RequireForSubmit bool   `yaml:"require_for_submit"`
}

type Log struct {
	JSON    bool   `yaml:"json"`
	Debug   bool   `yaml:"debug"`
	Service string `yaml:"service"`
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r. Unknown keys are rejected so typos surface early.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that can be checked without I/O.
func (c *File) Validate() error {
	if c.Owner != "" {
		if _, err := c.OwnerPrincipal(); err != nil {
			return fmt.Errorf("%w: owner: %v", ErrInvalidConfig, err)
		}
	}
	if _, err := registry.ParseTransitionPolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, uri := range c.Storage {
		if _, err := interfaces.NewStorageBackendLocation(uri); err != nil {
			return fmt.Errorf("%w: storage: %v", ErrInvalidConfig, err)
		}
	}
	if c.Identity.RequireForSubmit && c.Identity.OracleURL == "" {
		return fmt.Errorf("%w: identity.require_for_submit needs identity.oracle_url", ErrInvalidConfig)
	}
	if c.AuditCapacity < 0 || c.MaxClockSkew < 0 {
		return fmt.Errorf("%w: negative audit_capacity or max_clock_skew", ErrInvalidConfig)
	}
	return nil
}

// OwnerPrincipal parses the configured owner address.
func (c *File) OwnerPrincipal() (interfaces.Principal, error) {
	return interfaces.NewPrincipalFromHex(c.Owner)
}
