// Package escconf loads the escalation rule configuration: the resource
// ladder, the state-handling rule table and the tracker/logging settings.
// The document is loaded once per driver invocation.
package escconf

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/classify"
)

// defaultPartition is assumed when a ladder level names none.
const defaultPartition = "devel"

// ConfigError marks a missing or invalid configuration document. Fatal for
// the invocation that hit it.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// StateHandling is the configured substring→action rule table. YAML keeps
// mapping order, and that order is part of the contract: the first rule
// whose substring occurs in the raw state wins. It therefore decodes into
// a slice, never a Go map.
type StateHandling struct {
	Rules     []classify.Rule
	ExitCodes map[int]classify.Action
}

// UnmarshalYAML decodes the state_handling mapping in document order,
// splitting out the exit_codes sub-map.
func (h *StateHandling) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("state_handling must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		if key.Value == "exit_codes" {
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("state_handling.exit_codes must be a mapping")
			}
			h.ExitCodes = map[int]classify.Action{}
			for j := 0; j+1 < len(val.Content); j += 2 {
				code, err := strconv.Atoi(val.Content[j].Value)
				if err != nil {
					return fmt.Errorf("exit code %q is not an integer", val.Content[j].Value)
				}
				action, err := parseAction(val.Content[j+1].Value)
				if err != nil {
					return err
				}
				h.ExitCodes[code] = action
			}
			continue
		}

		action, err := parseAction(val.Value)
		if err != nil {
			return fmt.Errorf("state %q: %w", key.Value, err)
		}
		h.Rules = append(h.Rules, classify.Rule{Pattern: key.Value, Action: action})
	}
	return nil
}

func parseAction(raw string) (classify.Action, error) {
	switch raw {
	case "escalate":
		return classify.ActionEscalate, nil
	case "no_retry":
		return classify.ActionNoRetry, nil
	}
	return "", fmt.Errorf("action must be escalate or no_retry, got %q", raw)
}

// Config is the full escalation rule document.
type Config struct {
	Levels        []chain.Level `yaml:"levels"`
	StateHandling StateHandling `yaml:"state_handling"`

	Timeout struct {
		SacctDelay int `yaml:"sacct_delay"`
	} `yaml:"timeout"`

	Tracker struct {
		BaseDir       string `yaml:"base_dir"`
		HistoryLog    string `yaml:"history_log"`
		CheckpointDir string `yaml:"checkpoint_dir"`
		OutputDir     string `yaml:"output_dir"`
	} `yaml:"tracker"`

	Logging struct {
		Enabled bool   `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"logging"`

	MaxArraySpecLen int `yaml:"max_array_spec_len"`

	Cluster struct {
		Name      string `yaml:"name"`
		Partition string `yaml:"partition"`
		Nodes     string `yaml:"nodes"`
	} `yaml:"cluster"`
}

// Load reads, schema-validates and decodes a config document. Any failure
// is a ConfigError; callers abort the invocation on it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := validateSchema(b); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	for i := range cfg.Levels {
		if cfg.Levels[i].Partition == "" {
			cfg.Levels[i].Partition = defaultPartition
		}
	}
	return &cfg, nil
}

// MaxLevel is the highest ladder index.
func (c *Config) MaxLevel() int {
	return len(c.Levels) - 1
}

// Partition returns the partition of the ladder's first level.
func (c *Config) Partition() string {
	if len(c.Levels) > 0 && c.Levels[0].Partition != "" {
		return c.Levels[0].Partition
	}
	return defaultPartition
}

// Rules translates the configured state handling into classifier rules,
// falling back to the built-in defaults when the document has none.
func (c *Config) Rules() classify.Rules {
	if len(c.StateHandling.Rules) == 0 {
		return classify.DefaultRules()
	}
	return classify.Rules{
		States:    c.StateHandling.Rules,
		ExitCodes: c.StateHandling.ExitCodes,
	}
}
