// Package config loads run configuration for otapatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModuleConfig selects one module to inject and where its payload lives.
type ModuleConfig struct {
	Name string `yaml:"name"`
	Zip  string `yaml:"zip"`

	// Sig is the detached OpenSSH signature for Zip. Verification is
	// skipped when empty.
	Sig string `yaml:"sig,omitempty"`
}

// RunConfig holds run-level settings loaded from otapatch.yml.
type RunConfig struct {
	Input   string `yaml:"input,omitempty"`
	Output  string `yaml:"output,omitempty"`
	WorkDir string `yaml:"workDir,omitempty"`

	// CompatSepolicy extends security-context merges to secondary
	// partitions. Passed explicitly into each merge request downstream.
	CompatSepolicy bool `yaml:"compatSepolicy,omitempty"`

	// TrustedKey is the public key module signatures are checked against.
	TrustedKey string `yaml:"trustedKey,omitempty"`

	Modules []ModuleConfig `yaml:"modules,omitempty"`
}

// Load attempts to read otapatch.yml or otapatch.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*RunConfig, error) {
	for _, name := range []string{"otapatch.yml", "otapatch.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg RunConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	return &RunConfig{}, nil
}
