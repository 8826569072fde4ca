package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

// LoadUserConfig reads the UserConfig stored in the TOML file at the path
// passed. Values missing from the file keep their DefaultConfig value. If
// the file does not exist yet, it is created with the default configuration.
// The file is rewritten after reading, so that options added since it was
// created show up in it.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("read config: %w", err)
	}
	if len(data) != 0 {
		if err := toml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("decode config: %w", err)
		}
	}
	encoded, err := toml.Marshal(c)
	if err != nil {
		return c, fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return c, fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return c, fmt.Errorf("write config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides the fields of the UserConfig from BRICK_* environment
// variables that are set.
func (uc *UserConfig) ApplyEnv() error {
	if err := env.Parse(uc); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
