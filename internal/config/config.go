package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/xcp/internal/engine"
)

// Config represents the optional xcp configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. A nil field means "not set";
// command-line flags always win over these.
type DefaultsConfig struct {
	Workers     *int                    `toml:"workers"`
	BlockSize   *string                 `toml:"block_size"`
	Overwrite   *engine.OverwritePolicy `toml:"overwrite"`
	BWLimit     *string                 `toml:"bwlimit"`
	Verify      *bool                   `toml:"verify"`
	Gitignore   *bool                   `toml:"gitignore"`
	Fsync       *bool                   `toml:"fsync"`
	Dereference *bool                   `toml:"dereference"`
	NoProgress  *bool                   `toml:"no_progress"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "xcp", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile decodes the config at path. Unknown keys are an error so typos
// do not silently fall back to defaults.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}
