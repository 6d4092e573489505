// Package config loads, validates, and persists the layered YAML
// configuration: explicit path > workspace-local (walking up the directory
// tree) > home-global > compiled-in defaults, with environment variable
// overrides layered on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// BackendConfig describes one entry in the backends map.
type BackendConfig struct {
	Type             string  `mapstructure:"type" yaml:"type"`
	URL              string  `mapstructure:"url" yaml:"url"`
	Model            string  `mapstructure:"model" yaml:"model"`
	Timeout          int     `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	APIKey           string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	MaxParallelTools int     `mapstructure:"max_parallel_tools" yaml:"max_parallel_tools,omitempty"`

	// ContextWindow is the model's total token budget, distinct from
	// MaxTokens (the per-request generation cap). It is informational: the
	// Agentic Loop uses it only to compute the figures shown by /context.
	// A zero value
	// means unknown, in which case EffectiveContextWindow falls back to a
	// model-name guess.
	ContextWindow int `mapstructure:"context_window" yaml:"context_window,omitempty"`
}

// EffectiveContextWindow returns b.ContextWindow if set, otherwise a guess
// based on the model name, mirroring the provider's own published limits.
func (b BackendConfig) EffectiveContextWindow() int {
	if b.ContextWindow > 0 {
		return b.ContextWindow
	}
	return guessContextWindow(b.Type, b.Model)
}

func guessContextWindow(backendType, model string) int {
	switch backendType {
	case "anthropic":
		return 200000
	case "openai", "openai-compat":
		switch {
		case strings.HasPrefix(model, "gpt-5"):
			return 400000
		case strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
			return 200000
		case strings.HasPrefix(model, "gpt-3.5"):
			return 16000
		default:
			return 128000
		}
	default:
		return 128000
	}
}

// SandboxConfig controls the path-jail policy.
type SandboxConfig struct {
	MaxFileSize     int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
	BlockedPaths    []string `mapstructure:"blocked_paths" yaml:"blocked_paths"`
	IgnoredPaths    []string `mapstructure:"ignored_paths" yaml:"ignored_paths"`
	AllowedCommands []string `mapstructure:"allowed_commands" yaml:"allowed_commands,omitempty"`
}

// ConfirmationConfig is informational only — the gate itself acts on the
// tool descriptor's static RequiresConfirmation flag, not on these booleans.
type ConfirmationConfig struct {
	TextOperations bool `mapstructure:"text_operations" yaml:"text_operations"`
	ShellCommands  bool `mapstructure:"shell_commands" yaml:"shell_commands"`
}

// CompressionConfig configures the Compression Routine's triggers.
type CompressionConfig struct {
	AutoEnabled      bool    `mapstructure:"auto_enabled" yaml:"auto_enabled"`
	AutoThreshold    int     `mapstructure:"auto_threshold" yaml:"auto_threshold"`
	AutoKeep         int     `mapstructure:"auto_keep" yaml:"auto_keep"`
	WarningThreshold float64 `mapstructure:"warning_threshold" yaml:"warning_threshold"`
	MaxMessages      int     `mapstructure:"max_messages" yaml:"max_messages,omitempty"`
}

// GuidelinesConfig selects the Guidelines Pipeline's load policy.
type GuidelinesConfig struct {
	LoadMode string `mapstructure:"load_mode" yaml:"load_mode"`
}

// Config is the fully resolved, typed configuration. Callers never touch
// Viper directly; Load returns this shape.
type Config struct {
	DefaultBackend string                   `mapstructure:"default_backend" yaml:"default_backend"`
	Backends       map[string]BackendConfig `mapstructure:"backends" yaml:"backends"`
	Sandbox        SandboxConfig            `mapstructure:"sandbox" yaml:"sandbox"`
	Confirmations  ConfirmationConfig       `mapstructure:"confirmations" yaml:"confirmations"`
	Compression    CompressionConfig        `mapstructure:"compression" yaml:"compression"`
	Guidelines     GuidelinesConfig         `mapstructure:"guidelines" yaml:"guidelines"`
	MaxIterations  int                      `mapstructure:"max_iterations" yaml:"max_iterations"`
	LogLevel       string                   `mapstructure:"log_level" yaml:"log_level"`

	// ProxyPort/ProxyHost are accepted but unused, so a config.yaml
	// written for the proxy-daemon variant of this tool still loads
	// without an unknown-key error.
	ProxyPort int    `mapstructure:"proxy_port" yaml:"proxy_port,omitempty"`
	ProxyHost string `mapstructure:"proxy_host" yaml:"proxy_host,omitempty"`

	// loadedFrom records the file Load actually read, or "" for
	// defaults-only. Used by Save to know where to write back.
	loadedFrom string
}

const (
	workspaceDirName = ".agentichat"
	legacyDirName    = ".llm-context"
	configFileName   = "config.yaml"
	homeDirName      = ".agentichat"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_backend", "")
	v.SetDefault("backends", map[string]any{})
	v.SetDefault("sandbox.max_file_size", 1_000_000)
	v.SetDefault("sandbox.blocked_paths", defaultBlockedGlobs())
	v.SetDefault("sandbox.ignored_paths", defaultIgnoredGlobs())
	v.SetDefault("confirmations.text_operations", true)
	v.SetDefault("confirmations.shell_commands", true)
	v.SetDefault("compression.auto_enabled", true)
	v.SetDefault("compression.auto_threshold", 20)
	v.SetDefault("compression.auto_keep", 5)
	v.SetDefault("compression.warning_threshold", 0.75)
	v.SetDefault("guidelines.load_mode", "confirm")
	v.SetDefault("max_iterations", 10)
	v.SetDefault("log_level", "info")
}

// defaultBlockedGlobs and defaultIgnoredGlobs are config's own default lists,
// kept separate from (and not identical to) sandbox.DefaultBlockedGlobs and
// sandbox.DefaultIgnoredGlobs so that config has no dependency on the
// component it configures. applySandboxConfig in cmd/root.go reconciles the
// two once, at startup: a non-empty config list replaces the sandbox's.
func defaultBlockedGlobs() []string {
	return []string{"**/.env", "**/.env.*", "**/*.key", "**/*.pem", "**/id_rsa", "**/id_ed25519"}
}

func defaultIgnoredGlobs() []string {
	return []string{
		"**/.git/**", "**/node_modules/**", "**/.venv/**", "**/venv/**",
		"**/__pycache__/**", "**/.mypy_cache/**", "**/dist/**", "**/build/**",
		"**/.idea/**", "**/.vscode/**", "**/*.pyc",
	}
}

// findWorkspaceConfig walks up from the current directory looking for
// .agentichat/config.yaml, falling back to the legacy .llm-context/config.yaml
// name at the same level.
func findWorkspaceConfig() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		for _, name := range []string{workspaceDirName, legacyDirName} {
			candidate := filepath.Join(dir, name, configFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load resolves configuration in precedence order: explicitPath (if
// non-empty) > workspace-local (walking up for .agentichat/config.yaml or
// legacy .llm-context/config.yaml) > home-global ~/.agentichat/config.yaml >
// compiled defaults. Environment variables are applied last.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	loadedFrom := ""
	switch {
	case explicitPath != "":
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", explicitPath, err)
		}
		loadedFrom = explicitPath
	default:
		if path, ok := findWorkspaceConfig(); ok {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read workspace config %s: %w", path, err)
			}
			loadedFrom = path
		} else if home, err := os.UserHomeDir(); err == nil {
			globalPath := filepath.Join(home, homeDirName, configFileName)
			if _, statErr := os.Stat(globalPath); statErr == nil {
				v.SetConfigFile(globalPath)
				if err := v.ReadInConfig(); err != nil {
					return nil, fmt.Errorf("read global config %s: %w", globalPath, err)
				}
				loadedFrom = globalPath
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.loadedFrom = loadedFrom

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides layers the recognized environment variables over the
// resolved config: env always wins over any file.
// LLMCHAT_PROXY_PORT is honored only to keep the dormant field populated;
// OPENAI_API_KEY/ANTHROPIC_API_KEY fill in a missing api_key on the default
// backend (the latter is a recognized-but-otherwise-unused name, since
// Adapter 1 is generically openai-compatible rather than Anthropic-specific).
// OLLAMA_HOST overrides the url of the default backend when that backend is
// local-runtime; other backends are left as configured.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLMCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LLMCHAT_PROXY_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.ProxyPort = port
		}
	}

	def, hasDefault := cfg.Backends[cfg.DefaultBackend]
	apiKeyEnv := map[string]string{"openai-compat": "OPENAI_API_KEY"}
	if hasDefault && def.APIKey == "" {
		envName := apiKeyEnv[def.Type]
		if envName == "" {
			envName = "OPENAI_API_KEY"
		}
		if key := os.Getenv(envName); key != "" {
			def.APIKey = key
		} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			def.APIKey = key
		}
	}
	if hasDefault && def.Type == "local-runtime" {
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			def.URL = host
		}
	}
	if hasDefault {
		cfg.Backends[cfg.DefaultBackend] = def
	}
}

// DataDir resolves the workspace data directory (<workspace>/.agentichat),
// overridable by LLMCHAT_DATA.
func DataDir(workspaceRoot string) string {
	if v := os.Getenv("LLMCHAT_DATA"); v != "" {
		return v
	}
	return filepath.Join(workspaceRoot, workspaceDirName)
}

// Save persists cfg back to the file it was loaded from (or the home-global
// path if it was defaults-only) via a temp-file-plus-rename so a crash
// mid-write never corrupts the previous config.
func (cfg *Config) Save() error {
	path := cfg.loadedFrom
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, homeDirName, configFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp config file into place: %w", err)
	}
	cfg.loadedFrom = path
	return nil
}

// ModelMetadata is the persisted shape of <home>/.agentichat/model_metadata.json:
// observed per-model constraints learned from provider error text.
type ModelMetadata struct {
	Models map[string]ModelConstraint `json:"models"`
}

// ModelConstraint holds one model's learned constraints.
type ModelConstraint struct {
	MaxParallelTools int `json:"max_parallel_tools,omitempty"`
}

// ModelMetadataPath returns the path to model_metadata.json under the
// home-global config directory.
func ModelMetadataPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, homeDirName, "model_metadata.json"), nil
}

// LoadModelMetadata reads model_metadata.json, returning an empty (non-nil)
// ModelMetadata if the file doesn't exist yet.
func LoadModelMetadata() (*ModelMetadata, error) {
	path, err := ModelMetadataPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ModelMetadata{Models: make(map[string]ModelConstraint)}, nil
		}
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var m ModelMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}
	if m.Models == nil {
		m.Models = make(map[string]ModelConstraint)
	}
	return &m, nil
}

// Save persists model metadata via the same temp-file-plus-rename pattern
// Config.Save uses.
func (m *ModelMetadata) Save() error {
	path, err := ModelMetadataPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create home config dir: %w", err)
	}

	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-metadata-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp model metadata file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp model metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp model metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadedFrom reports which file Load actually read, or "" if only compiled
// defaults were used.
func (cfg *Config) LoadedFrom() string {
	return cfg.loadedFrom
}

