package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlFeed represents a single feed configuration
type TomlFeed struct {
	Id         string   `toml:"id"`
	Url        string   `toml:"url"`
	LedgerPath string   `toml:"ledger_path,omitempty"`
	Include    []string `toml:"include,omitempty"` // Keywords an item must contain to be posted
	Exclude    []string `toml:"exclude,omitempty"` // Keywords that suppress an item
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Feeds []TomlFeed `toml:"feeds"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	for i, feed := range config.Feeds {
		if feed.Id == "" {
			return nil, fmt.Errorf("feed %d is missing an id", i)
		}
		if feed.Url == "" {
			return nil, fmt.Errorf("feed %s is missing a url", feed.Id)
		}
	}

	return &config, nil
}
