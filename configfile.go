package gitver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFileName is the file LoadConfig looks for.
const DefaultConfigFileName = "gitver.yml"

// ConfigEnvVar names a configuration file that takes precedence over the
// search directories.
const ConfigEnvVar = "GITVER_CONFIG"

// LoadConfig finds and reads the configuration file. Priority: GITVER_CONFIG,
// then gitver.yml in workingDir, then in repoRoot. When no file exists an
// empty configuration is returned with an empty path.
func LoadConfig(workingDir, repoRoot string) (*Config, string, error) {
	if envPath := os.Getenv(ConfigEnvVar); envPath != "" {
		cfg, err := LoadConfigFile(envPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, envPath, nil
	}

	for _, dir := range []string{workingDir, repoRoot} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, DefaultConfigFileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	return &Config{}, "", nil
}

// LoadConfigFile reads a configuration file. Unknown keys are rejected.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := ReadConfig(f)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ReadConfig decodes a configuration document. An empty document is an
// empty configuration.
func ReadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig encodes a configuration as YAML.
func WriteConfig(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
