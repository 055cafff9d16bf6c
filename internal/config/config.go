package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLimit       = 5
	MinLimit           = 1
	MaxLimit           = 30
	DefaultConcurrency = 4
	DefaultEventHour   = 10
	DefaultEventLength = 60
)

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "groq", "openai", "anthropic", "perplexity", "ollama"
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"` // custom endpoint; defaults per provider
	Model     string `yaml:"model"`    // defaults per provider
	APIFormat string `yaml:"api_format,omitempty"`
}

// EventConfig controls where meeting events land on the calendar.
type EventConfig struct {
	Hour            int    `yaml:"hour"`
	DurationMinutes int    `yaml:"duration_minutes"`
	TimeZone        string `yaml:"time_zone"`
}

// Duration returns the event length.
func (e EventConfig) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Location resolves TimeZone, defaulting to UTC.
func (e EventConfig) Location() (*time.Location, error) {
	if e.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid event time zone %q: %w", e.TimeZone, err)
	}
	return loc, nil
}

// Config holds application configuration
type Config struct {
	CredentialsFile string      `yaml:"credentials_file"`
	TokenFile       string      `yaml:"token_file"`
	LLM             LLMConfig   `yaml:"llm"`
	Limit           int         `yaml:"limit"`
	Approval        string      `yaml:"approval"`
	BatchDispatch   bool        `yaml:"batch_dispatch"`
	Concurrency     int         `yaml:"concurrency"`
	CalendarID      string      `yaml:"calendar_id"`
	Event           EventConfig `yaml:"event"`
	ExportDir       string      `yaml:"export_dir"`
	LogFile         string      `yaml:"log_file"`
	MetricsAddr     string      `yaml:"metrics_addr"`
	Theme           string      `yaml:"theme"`
}

func defaults() *Config {
	return &Config{
		Limit:       DefaultLimit,
		Approval:    "interactive",
		Concurrency: DefaultConcurrency,
		CalendarID:  "primary",
		Event: EventConfig{
			Hour:            DefaultEventHour,
			DurationMinutes: DefaultEventLength,
			TimeZone:        "UTC",
		},
		ExportDir: ".",
		Theme:     "default",
	}
}

// GetLLMConfig returns the effective LLM configuration. Env vars override
// the config file; GROQ_API_KEY is honoured when nothing else supplies a key.
func (c *Config) GetLLMConfig() LLMConfig {
	llm := c.LLM

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		llm.APIKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		llm.Provider = provider
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		llm.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		llm.Model = model
	}

	if llm.APIKey == "" {
		if key := os.Getenv("GROQ_API_KEY"); key != "" {
			llm.APIKey = key
			if llm.Provider == "" {
				llm.Provider = "groq"
			}
		}
	}

	return llm
}

// Load reads .env from the working directory, then the config file, then
// environment variables. Later sources win.
func Load() (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := defaults()

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.loadFromEnv()
	cfg.normalize()

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath := getConfigPath()
	if configPath == "" {
		return os.ErrNotExist
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if s := os.Getenv("INBOX_TRIAGE_LIMIT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			c.Limit = n
		}
	}
	if s := os.Getenv("INBOX_TRIAGE_APPROVAL"); s != "" {
		c.Approval = s
	}
}

// normalize fills zero values and clamps the fetch limit.
func (c *Config) normalize() {
	c.Limit = ClampLimit(c.Limit)
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.Event.Hour < 0 || c.Event.Hour > 23 {
		c.Event.Hour = DefaultEventHour
	}
	if c.Event.DurationMinutes <= 0 {
		c.Event.DurationMinutes = DefaultEventLength
	}
	if c.Approval == "" {
		c.Approval = "interactive"
	}

	dir, err := GetConfigDir()
	if err != nil {
		return
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = filepath.Join(dir, "credentials.json")
	}
	if c.TokenFile == "" {
		c.TokenFile = filepath.Join(dir, "token.json")
	}
}

// ClampLimit maps n into [MinLimit, MaxLimit]; zero means DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < MinLimit:
		return MinLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// getConfigPath returns the path to the config file
// Priority: $INBOX_TRIAGE_CONFIG > ~/.config/inbox-triage/config.yaml
func getConfigPath() string {
	if configPath := os.Getenv("INBOX_TRIAGE_CONFIG"); configPath != "" {
		return configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "inbox-triage", "config.yaml")
}

// GetConfigPath exposes the resolved config file location.
func GetConfigPath() string {
	return getConfigPath()
}

func GetConfigDir() (string, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return "", fmt.Errorf("cannot determine config path")
	}
	return filepath.Dir(configPath), nil
}

// EnsureConfigDir ensures the config directory exists
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return configDir, nil
}

// SaveExampleConfig creates an example config file. It reports whether a
// new file was written.
func SaveExampleConfig() (bool, error) {
	if _, err := EnsureConfigDir(); err != nil {
		return false, err
	}

	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return false, nil // Already exists, don't overwrite
	}

	example := `# Inbox Triage Configuration

# OAuth client secrets downloaded from the Google Cloud console, and the
# token written by "inbox-triage auth". Default to this directory.
# credentials_file: ""
# token_file: ""

# LLM used to classify each email and draft a reply.
# Environment variables LLM_API_KEY, LLM_PROVIDER, LLM_BASE_URL, LLM_MODEL
# and GROQ_API_KEY also work.
llm:
  provider: "groq"         # "groq", "openai", "anthropic", "perplexity", "ollama"
  api_key: ""              # not needed for ollama
  # base_url: ""           # override endpoint (defaults per provider)
  # model: ""              # override model (defaults per provider)

# Number of unread emails to fetch (1-30)
limit: 5

# "interactive": every send/add action fires immediately.
# "batch": review the whole batch, then approve or reject once.
approval: "interactive"

# In batch mode, also send every draft reply after approval.
batch_dispatch: false

# Concurrent LLM calls during analysis
concurrency: 4

calendar_id: "primary"

# Meeting events are placed on the next day at this hour.
event:
  hour: 10
  duration_minutes: 60
  time_zone: "UTC"

# Where email_report.json and email_report.txt are written
export_dir: "."

# Optional: JSON log file (the terminal belongs to the UI)
# log_file: ""

# Optional: serve Prometheus metrics, e.g. "127.0.0.1:9090"
# metrics_addr: ""

# Optional: Color theme (default, catppuccin, dracula, nord, gruvbox)
theme: "default"
`

	if err := os.WriteFile(configPath, []byte(example), 0600); err != nil {
		return false, err
	}
	return true, nil
}

// Save persists the fields the UI manages, keeping everything else
// (including secrets) as found on disk.
func (c *Config) Save() error {
	if _, err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath := getConfigPath()

	existing := defaults()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, existing); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}

	existing.Limit = c.Limit
	existing.Theme = c.Theme

	data, err := yaml.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Inbox Triage Configuration\n# Note: Sensitive values (api keys) can be set via environment variables or this file\n\n")
	return os.WriteFile(configPath, append(header, data...), 0600)
}
