package uplink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// environmentsFile is the on-disk shape of an environment table:
//
//	environments:
//	  production:
//	    base_url: https://api.example.com
//	    version: v2
//	    timeout: 30s
//	    headers:
//	      X-Client: uplink
type environmentsFile struct {
	Environments map[string]environmentEntry `yaml:"environments"`
}

type environmentEntry struct {
	BaseURL    string            `yaml:"base_url"`
	ChannelURL string            `yaml:"channel_url"`
	Version    string            `yaml:"version"`
	Timeout    string            `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
	MockMode   bool              `yaml:"mock_mode"`
	Headers    map[string]string `yaml:"headers"`
}

// ParseEnvironments decodes a YAML environment table. Durations use Go
// syntax ("30s", "1m"). An entry's name is its map key.
func ParseEnvironments(data []byte) (Environments, error) {
	var file environmentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("uplink: parse environments: %w", err)
	}

	envs := make(Environments, len(file.Environments))
	for name, entry := range file.Environments {
		env := Environment{
			Name:       name,
			BaseURL:    entry.BaseURL,
			ChannelURL: entry.ChannelURL,
			Version:    entry.Version,
			MaxRetries: entry.MaxRetries,
			MockMode:   entry.MockMode,
			Headers:    entry.Headers,
		}
		if entry.Timeout != "" {
			d, err := time.ParseDuration(entry.Timeout)
			if err != nil {
				return nil, fmt.Errorf("uplink: environment %q: bad timeout: %w", name, err)
			}
			env.Timeout = d
		}
		envs[name] = env
	}
	return envs, nil
}

// LoadEnvironments reads and parses an environment table from a YAML file.
func LoadEnvironments(path string) (Environments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("uplink: read environments: %w", err)
	}
	return ParseEnvironments(data)
}
