package config

import (
	"os"

	"github.com/go-git/go-billy/v5"
)

const (
	repoConfigPath = "config"
	gitconfigFile  = ".gitconfig"
	systemFile     = "/etc/gitconfig"
)

// Load reads the repository's .git/config (rooted at fs) together with
// ~/.gitconfig and /etc/gitconfig, if present, and layers them system <
// global < repo over the built-in defaults.
func Load(fs billy.Filesystem) (*Config, error) {
	cfg := Default()

	if f, err := fs.Open(systemFile); err == nil {
		cfg, err = Decode(f, cfg)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if f, err := fs.Open(fs.Join(home, gitconfigFile)); err == nil {
			cfg, err = Decode(f, cfg)
			_ = f.Close()
			if err != nil {
				return nil, err
			}
		}
	}

	if f, err := fs.Open(repoConfigPath); err == nil {
		cfg, err = Decode(f, cfg)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
