// Package config loads the bot configuration: a JSON file with ${VAR} and
// ${VAR:-default} environment substitution, so credentials stay in the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the bot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Slack     SlackConfig     `json:"slack"`
	GitHub    GitHubConfig    `json:"github"`
	Knowledge KnowledgeConfig `json:"knowledge"`
}

type GeneralConfig struct {
	LogLevel               string `json:"logLevel"`
	SaveDir                string `json:"saveDir"`                // where retrieved file bytes are persisted
	DownloadTimeoutSeconds int    `json:"downloadTimeoutSeconds"` // per-download bound
	MaxConcurrentEvents    int    `json:"maxConcurrentEvents"`
}

type SlackConfig struct {
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
}

// GitHubConfig may be incomplete: missing values fail only the issue-filing
// path, never startup.
type GitHubConfig struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	APIBase string `json:"apiBase,omitempty"` // override for tests / GHE
}

type KnowledgeConfig struct {
	DBPath       string `json:"dbPath"`
	ChunkSize    int    `json:"chunkSize"`    // words per chunk
	ChunkOverlap int    `json:"chunkOverlap"` // overlapping words
	SearchTopK   int    `json:"searchTopK"`
}

// DefaultConfigDir returns the default config directory (~/.ragbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragbot"
	}
	return filepath.Join(home, ".ragbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads and parses the config file, substituting environment variables.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	stripUnresolved(cfg)

	cfg.General.SaveDir = ExpandPath(cfg.General.SaveDir)
	cfg.Knowledge.DBPath = ExpandPath(cfg.Knowledge.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a config purely from environment variables, for running
// without a config file.
func FromEnv() (*Config, error) {
	data, err := json.Marshal(Defaults())
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), cfg); err != nil {
		return nil, err
	}
	stripUnresolved(cfg)

	cfg.General.SaveDir = ExpandPath(cfg.General.SaveDir)
	cfg.Knowledge.DBPath = ExpandPath(cfg.Knowledge.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// stripUnresolved clears placeholders left by unset environment variables so
// that an unset ${GITHUB_TOKEN} reads as absent, not as a literal token.
func stripUnresolved(cfg *Config) {
	for _, field := range []*string{
		&cfg.Slack.BotToken, &cfg.Slack.AppToken,
		&cfg.GitHub.Token, &cfg.GitHub.Owner, &cfg.GitHub.Repo,
	} {
		if strings.HasPrefix(*field, "${") {
			*field = ""
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values. Slack and GitHub
// credentials are deliberately not required here: the doctor command reports
// them, and only the paths that need them fail.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.DownloadTimeoutSeconds < 1 {
		errs = append(errs, "general.downloadTimeoutSeconds must be >= 1")
	}
	if cfg.General.MaxConcurrentEvents < 1 || cfg.General.MaxConcurrentEvents > 100 {
		errs = append(errs, "general.maxConcurrentEvents must be between 1 and 100")
	}
	if cfg.Knowledge.ChunkSize < 1 {
		errs = append(errs, "knowledge.chunkSize must be >= 1")
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0 and smaller than chunkSize")
	}
	if cfg.Knowledge.SearchTopK < 1 {
		errs = append(errs, "knowledge.searchTopK must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
