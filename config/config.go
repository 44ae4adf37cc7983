// Package config loads and validates semindex application settings.
//
// Settings are expressed in YAML and can be loaded from a file path or from a
// literal YAML string, which keeps embedded and test configurations cheap to
// construct.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semindex/errors"
)

// Duration wraps time.Duration with YAML unmarshalling from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// EmbeddingsConfig configures the local index and its embedder.
type EmbeddingsConfig struct {
	// Method selects the embedder implementation: "bm25" (default) or "openai"
	Method string `yaml:"method"`

	// Dimensions is the embedding vector size (default 384)
	Dimensions int `yaml:"dimensions"`

	// Scoring enables a lexical scoring pre-pass before full index builds.
	// Currently "bm25" is the only supported method.
	Scoring string `yaml:"scoring"`

	// Model is the embedding model for the openai method
	Model string `yaml:"model"`

	// BaseURL points at an OpenAI-compatible embedding service
	BaseURL string `yaml:"baseurl"`

	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"apikeyenv"`

	// CacheSize bounds the embedding LRU cache (0 disables caching)
	CacheSize int `yaml:"cachesize"`
}

// ClusterConfig configures the shard router. When present, every index
// operation is delegated to the cluster and the local index path is unused.
type ClusterConfig struct {
	// Shards lists base URLs of remote index shards
	Shards []string `yaml:"shards"`

	// Timeout bounds each shard request (default 30s)
	Timeout Duration `yaml:"timeout"`
}

// ScheduleConfig describes the recurring execution of a workflow. It is
// opaque to the gateway and consumed by the workflow's schedule entry point.
type ScheduleConfig struct {
	// Every is the interval between runs
	Every Duration `yaml:"every"`

	// Iterations bounds the number of runs (0 means unbounded)
	Iterations int `yaml:"iterations"`

	// Elements is the input batch passed to each run
	Elements []any `yaml:"elements"`
}

// TaskConfig is the declarative descriptor for one workflow stage. Action,
// Initialize and Finalize reference pipelines or built-in mutation actions
// by name and are resolved to callables once, at workflow construction.
type TaskConfig struct {
	// Action is a single action name or a list of action names
	Action any `yaml:"action"`

	// Initialize optionally names an action run before the first batch
	Initialize string `yaml:"initialize"`

	// Finalize optionally names an action run after the last batch
	Finalize string `yaml:"finalize"`

	// Unpack controls whether elements are expanded into positional
	// arguments (defaults to true, forced false for index mutations)
	Unpack *bool `yaml:"unpack"`

	// Batch sets the number of elements processed per action call
	Batch int `yaml:"batch"`
}

// WorkflowConfig declares a workflow: an ordered task list plus an optional
// recurring schedule.
type WorkflowConfig struct {
	Tasks    []TaskConfig    `yaml:"tasks"`
	Schedule *ScheduleConfig `yaml:"schedule"`
}

// Settings is the complete application configuration. It is read-only after
// gateway construction.
type Settings struct {
	// Path is the index persistence location (empty for memory-only)
	Path string `yaml:"path"`

	// Embeddings configures the local index; nil means no local index
	Embeddings *EmbeddingsConfig `yaml:"embeddings"`

	// Cluster configures the shard router; nil means no cluster
	Cluster *ClusterConfig `yaml:"cluster"`

	// Writable gates all mutating operations
	Writable bool `yaml:"writable"`

	// Workflow maps workflow names to their declarations
	Workflow map[string]WorkflowConfig `yaml:"workflow"`

	// Pipelines collects the remaining top-level keys, one per pipeline
	// name, each holding that pipeline's own configuration
	Pipelines map[string]map[string]any `yaml:",inline"`
}

// Load reads settings from a file path or, when no file exists at that path,
// parses the argument itself as literal YAML.
func Load(data string) (*Settings, error) {
	if _, err := os.Stat(data); err == nil {
		raw, err := os.ReadFile(data)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "read file")
		}
		return Parse(raw)
	}
	return Parse([]byte(data))
}

// Parse decodes YAML settings and applies defaults.
func Parse(raw []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "yaml unmarshal")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks structural invariants that would otherwise surface as
// confusing failures deep inside gateway construction.
func (s *Settings) Validate() error {
	if s.Cluster != nil && len(s.Cluster.Shards) == 0 {
		return errors.WrapInvalid(errors.ErrNoShards, "config", "Validate", "cluster")
	}

	for name, workflow := range s.Workflow {
		if len(workflow.Tasks) == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("workflow %q has no tasks", name),
				"config", "Validate", "workflow")
		}
		if workflow.Schedule != nil && workflow.Schedule.Every <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("workflow %q schedule interval must be positive", name),
				"config", "Validate", "schedule")
		}
	}

	return nil
}

// Pipeline returns the configuration block for a pipeline name, or nil when
// the pipeline is not configured.
func (s *Settings) Pipeline(name string) map[string]any {
	if s.Pipelines == nil {
		return nil
	}
	return s.Pipelines[name]
}
