package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	keyBaseSourceDir  = "base_source_dir"
	keyDestinationDir = "destination_dir"
)

// defaultConfig is the template written on first run. The placeholder paths
// are intentionally unusable: the operator must edit the file and restart.
var defaultConfig = map[string]string{
	keyBaseSourceDir:  "/path/to/comfyui/output",
	keyDestinationDir: "/path/to/photos/inbox",
}

// Config carries the two validated absolute paths the core depends on.
type Config struct {
	BaseSourceDir  string
	DestinationDir string
}

// loadConfig reads the JSON parameters file at path. When the file is
// missing, a default template is written and an error returned so the
// operator can fill it in.
func loadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := writeDefaultConfig(path); werr != nil {
			return nil, fmt.Errorf("creating default config: %w", werr)
		}
		return nil, fmt.Errorf("no configuration found; a default was written to %s, edit it and restart", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	for _, key := range []string{keyBaseSourceDir, keyDestinationDir} {
		if !v.IsSet(key) {
			return nil, fmt.Errorf("config %s: missing required parameter %q", path, key)
		}
	}

	cfg := &Config{
		BaseSourceDir:  v.GetString(keyBaseSourceDir),
		DestinationDir: v.GetString(keyDestinationDir),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefaultConfig(path string) error {
	v := viper.New()
	v.SetConfigType("json")
	for key, val := range defaultConfig {
		v.Set(key, val)
	}
	return v.WriteConfigAs(path)
}

func (c *Config) validate() error {
	if !filepath.IsAbs(c.BaseSourceDir) {
		return fmt.Errorf("%s must be an absolute path, got %q", keyBaseSourceDir, c.BaseSourceDir)
	}
	if !filepath.IsAbs(c.DestinationDir) {
		return fmt.Errorf("%s must be an absolute path, got %q", keyDestinationDir, c.DestinationDir)
	}
	return nil
}
