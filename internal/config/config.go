package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider   string            `mapstructure:"provider"`
	Chat       ChatConfig        `mapstructure:"chat"`
	Store      StoreConfig       `mapstructure:"store"`
	Anthropic  AnthropicConfig   `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig      `mapstructure:"openai"`
	Ollama     OllamaConfig      `mapstructure:"ollama"`
	LMStudio   LMStudioConfig    `mapstructure:"lmstudio"`
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
	Roundtable RoundtableConfig  `mapstructure:"roundtable"`
}

// ChatConfig configures chat session behavior.
type ChatConfig struct {
	Instructions    string `mapstructure:"instructions"`      // Custom system prompt
	MaxOutputTokens int    `mapstructure:"max_output_tokens"` // 0 = provider default
	CancelTimeout   int    `mapstructure:"cancel_timeout"`    // Seconds before a stuck cancel is forced, 0 = default
	MaxTurns        int    `mapstructure:"max_turns"`         // Max agentic tool turns per request
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	Disabled bool   `mapstructure:"disabled"`
	Path     string `mapstructure:"path"` // Override default sqlite path
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig configures the Ollama provider (OpenAI-compatible)
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:11434/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, Ollama ignores it
}

// LMStudioConfig configures the LM Studio provider (OpenAI-compatible)
type LMStudioConfig struct {
	BaseURL string `mapstructure:"base_url"` // Default: http://localhost:1234/v1
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"` // Optional, LM Studio ignores it
}

// MCPServerConfig describes one MCP server to launch and connect to.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// RoundtableConfig configures multi-agent conversations.
type RoundtableConfig struct {
	Rounds int           `mapstructure:"rounds"` // Volleys per prompt (default 1)
	Agents []AgentConfig `mapstructure:"agents"`
}

// AgentConfig describes one participant in a roundtable.
type AgentConfig struct {
	Name         string `mapstructure:"name"`
	Provider     string `mapstructure:"provider"` // Defaults to the global provider
	Model        string `mapstructure:"model"`
	Instructions string `mapstructure:"instructions"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("chat.max_turns", 12)
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("openai.model", "gpt-5-mini")
	viper.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	viper.SetDefault("ollama.model", "qwen3")
	viper.SetDefault("lmstudio.base_url", "http://localhost:1234/v1")
	viper.SetDefault("roundtable.rounds", 1)

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)

	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "ollama":
			c.Ollama.Model = model
		case "lmstudio":
			c.LMStudio.Model = model
		}
	}
}

func resolveCredentials(cfg *Config) {
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.Ollama.APIKey = expandEnv(cfg.Ollama.APIKey)
	cfg.Ollama.BaseURL = expandEnv(cfg.Ollama.BaseURL)

	cfg.LMStudio.APIKey = expandEnv(cfg.LMStudio.APIKey)
	cfg.LMStudio.BaseURL = expandEnv(cfg.LMStudio.BaseURL)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for roundtable.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "roundtable"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "roundtable"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for roundtable.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "roundtable"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "roundtable"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes a starter config to disk.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`provider: %s

chat:
  # Custom system prompt for chat sessions
  # instructions: |
  #   Be concise. I'm an experienced developer.

anthropic:
  model: %s
  # api_key: defaults to ANTHROPIC_API_KEY

openai:
  model: %s
  # api_key: defaults to OPENAI_API_KEY

ollama:
  base_url: %s
  model: %s

# mcp_servers:
#   - name: filesystem
#     command: npx
#     args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]

# roundtable:
#   rounds: 2
#   agents:
#     - name: optimist
#       model: claude-sonnet-4-5
#       instructions: Argue for the idea.
#     - name: skeptic
#       model: gpt-5-mini
#       instructions: Argue against the idea.
`, cfg.Provider, cfg.Anthropic.Model, cfg.OpenAI.Model, cfg.Ollama.BaseURL, cfg.Ollama.Model)

	return os.WriteFile(path, []byte(content), 0600)
}
