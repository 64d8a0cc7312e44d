package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/codedd/internal/llm"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/retry"
	"github.com/TobiSchelling/codedd/internal/rubric"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Audit    Audit    `yaml:"audit"`
	Provider Provider `yaml:"provider"`
	Rubric   Rubric   `yaml:"rubric"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`

	// Credentials never come from the YAML file.
	Credentials Credentials `yaml:"-"`
}

type Audit struct {
	SamplesDir      string   `yaml:"samples_dir" validate:"required"`
	Patterns        []string `yaml:"patterns" validate:"min=1,dive,required"`
	MaxContentChars int      `yaml:"max_content_chars" validate:"gt=0"`
	Concurrency     int      `yaml:"concurrency" validate:"gte=1,lte=64"`
	Mode            string   `yaml:"mode" validate:"oneof=textual numerical"`
}

type Provider struct {
	Name           string `yaml:"name" validate:"oneof=anthropic openai ollama"`
	AnthropicModel string `yaml:"anthropic_model" validate:"required"`
	OpenAIModel    string `yaml:"openai_model" validate:"required"`
	OllamaModel    string `yaml:"ollama_model" validate:"required"`
	OllamaURL      string `yaml:"ollama_url" validate:"required,url"`
	MaxTokens      int    `yaml:"max_tokens" validate:"gt=0"`
	Retry          Retry  `yaml:"retry"`
}

type Retry struct {
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	BaseBackoff time.Duration `yaml:"base_backoff" validate:"gt=0"`
	MaxBackoff  time.Duration `yaml:"max_backoff" validate:"gtefield=BaseBackoff"`
}

type Rubric struct {
	Path string `yaml:"path"`
}

type Output struct {
	Dir     string `yaml:"dir" validate:"required"`
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

type Logging struct {
	Level string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Credentials are read from the environment.
type Credentials struct {
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
}

var validate = validator.New()

// ConfigDir returns the XDG config directory for codedd.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "codedd")
}

// DataDir returns the XDG data directory for codedd.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "codedd")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/codedd/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'codedd init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	policy := retry.DefaultPolicy()
	cfg := &Config{
		Audit: Audit{
			SamplesDir:      "code_samples",
			Patterns:        []string{"*.py"},
			MaxContentChars: 250000,
			Concurrency:     5,
			Mode:            string(rubric.ModeTextual),
		},
		Provider: Provider{
			Name:           string(record.BackendAnthropic),
			AnthropicModel: "claude-3-7-sonnet-latest",
			OpenAIModel:    "gpt-4-turbo-preview",
			OllamaModel:    "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			MaxTokens:      4096,
			Retry: Retry{
				MaxRetries:  policy.MaxRetries,
				BaseBackoff: policy.BaseBackoff,
				MaxBackoff:  policy.MaxBackoff,
			},
		},
		Output:  Output{Dir: "output"},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadCredentials reads API keys from the environment, after loading a
// .env file from the working directory when one exists.
func (c *Config) LoadCredentials(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return c.loadCredentialsWith(ctx, envconfig.OsLookuper())
}

func (c *Config) loadCredentialsWith(ctx context.Context, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c.Credentials,
		Lookuper: l,
	}); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	return nil
}

// CheckCredentials reports whether the key needed by backend is present.
func (c *Config) CheckCredentials(backend record.Backend) error {
	switch backend {
	case record.BackendAnthropic:
		if c.Credentials.AnthropicKey == "" {
			return fmt.Errorf("%s: %w (set ANTHROPIC_API_KEY)", backend, llm.ErrNoCredentials)
		}
	case record.BackendOpenAI:
		if c.Credentials.OpenAIKey == "" {
			return fmt.Errorf("%s: %w (set OPENAI_API_KEY)", backend, llm.ErrNoCredentials)
		}
	}
	return nil
}

// Backend returns the configured provider.
func (c *Config) Backend() record.Backend {
	return record.Backend(c.Provider.Name)
}

// Mode returns the configured scoring mode.
func (c *Config) Mode() rubric.Mode {
	return rubric.Mode(c.Audit.Mode)
}

// LLMSettings returns the provider settings for backend.
func (c *Config) LLMSettings(backend record.Backend) llm.Settings {
	return llm.Settings{
		Backend:        backend,
		AnthropicModel: c.Provider.AnthropicModel,
		AnthropicKey:   c.Credentials.AnthropicKey,
		OpenAIModel:    c.Provider.OpenAIModel,
		OpenAIKey:      c.Credentials.OpenAIKey,
		OllamaModel:    c.Provider.OllamaModel,
		OllamaURL:      c.Provider.OllamaURL,
	}
}

// RetryPolicy returns the retry section as a policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.Provider.Retry.MaxRetries
	p.BaseBackoff = c.Provider.Retry.BaseBackoff
	p.MaxBackoff = c.Provider.Retry.MaxBackoff
	return p
}

// LoadRubric returns the rubric at rubric.path, or the built-in one.
func (c *Config) LoadRubric() (*rubric.Rubric, error) {
	if c.Rubric.Path == "" {
		return rubric.Default(), nil
	}
	return rubric.Load(c.Rubric.Path)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "codedd.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
