package coreg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultResultsCachePath is the default path for the reconciled-results cache
const DefaultResultsCachePath = ".results-cache.json"

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields
	if len(config.Entries) == 0 {
		return nil, fmt.Errorf("at least one entry must be defined")
	}

	seen := make(map[string]bool, len(config.Entries))
	for i, ec := range config.Entries {
		if ec.ID == "" {
			return nil, fmt.Errorf("entries[%d].id is required", i)
		}
		if seen[ec.ID] {
			return nil, fmt.Errorf("duplicate entry id %q", ec.ID)
		}
		seen[ec.ID] = true

		switch ec.KeyMode {
		case "", "coordinates", "string":
		default:
			return nil, fmt.Errorf("entries[%d].keyMode must be \"coordinates\" or \"string\", got %q", i, ec.KeyMode)
		}
		switch ec.Display {
		case "", string(NameStyleParen), string(NameStyleSample):
		default:
			return nil, fmt.Errorf("entries[%d].display must be \"paren\" or \"sample\", got %q", i, ec.Display)
		}
		if ec.Unit != "" {
			if _, err := UnitScale(ec.Unit); err != nil {
				return nil, fmt.Errorf("entries[%d]: %w", i, err)
			}
		}
		if ec.Alignment != nil && ec.Alignment.Unit != "" {
			if _, err := UnitScale(ec.Alignment.Unit); err != nil {
				return nil, fmt.Errorf("entries[%d].alignment: %w", i, err)
			}
		}
	}

	if config.ResultsCache == "" {
		config.ResultsCache = DefaultResultsCachePath
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
