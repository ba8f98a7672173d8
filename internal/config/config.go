package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSender is the Federal Circuit's opinion notification address.
const DefaultSender = "uscourts@updates.uscourts.gov"

// DefaultFooterMarker starts the boilerplate footer of notification emails.
const DefaultFooterMarker = "To view or to search for other opinions and orders"

type Config struct {
	Mailbox    MailboxConfig    `yaml:"mailbox"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Store      StoreConfig      `yaml:"store"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Log        LogConfig        `yaml:"log"`
}

type MailboxConfig struct {
	CredentialsFile string   `yaml:"credentials_file"`
	TokenFile       string   `yaml:"token_file"`
	Senders         []string `yaml:"senders"`
	MaxResults      int      `yaml:"max_results"`
	FooterMarker    string   `yaml:"footer_marker"`
}

type FetcherConfig struct {
	PDFDir            string `yaml:"pdf_dir"`
	RequestIntervalMS int    `yaml:"request_interval_ms"`
	MaxRetries        int    `yaml:"max_retries"`
}

type StoreConfig struct {
	SummaryDir string `yaml:"summary_dir"`
}

type SummarizerConfig struct {
	Type          string `yaml:"type"`
	Model         string `yaml:"model"`
	APIKey        string `yaml:"api_key"`
	MaxTokens     int    `yaml:"max_tokens"`
	MaxInputChars int    `yaml:"max_input_chars"`
	Prompt        string `yaml:"prompt"`
	PromptFile    string `yaml:"prompt_file"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Email   EmailConfig   `yaml:"email"`
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// EmailConfig holds digest recipients for every email publisher and the
// SMTP settings used by the "email" publisher.
type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Bcc      []string `yaml:"bcc"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: failed to load %s: %w", p, err)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Mailbox.CredentialsFile == "" {
		cfg.Mailbox.CredentialsFile = "credentials.json"
	}
	if cfg.Mailbox.TokenFile == "" {
		cfg.Mailbox.TokenFile = "token.json"
	}
	if len(cfg.Mailbox.Senders) == 0 {
		cfg.Mailbox.Senders = []string{DefaultSender}
	}
	if cfg.Mailbox.MaxResults == 0 {
		cfg.Mailbox.MaxResults = 50
	}
	if cfg.Mailbox.FooterMarker == "" {
		cfg.Mailbox.FooterMarker = DefaultFooterMarker
	}
	if cfg.Fetcher.PDFDir == "" {
		cfg.Fetcher.PDFDir = "pdfs"
	}
	if cfg.Fetcher.RequestIntervalMS == 0 {
		cfg.Fetcher.RequestIntervalMS = 500
	}
	if cfg.Fetcher.MaxRetries == 0 {
		cfg.Fetcher.MaxRetries = 3
	}
	if cfg.Store.SummaryDir == "" {
		cfg.Store.SummaryDir = "summaries"
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "anthropic"
	}
	if cfg.Summarizer.Model == "" {
		switch cfg.Summarizer.Type {
		case "openai":
			cfg.Summarizer.Model = "gpt-4o"
		default:
			cfg.Summarizer.Model = "claude-sonnet-4-20250514"
		}
	}
	if cfg.Summarizer.APIKey == "" {
		switch cfg.Summarizer.Type {
		case "openai":
			cfg.Summarizer.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			cfg.Summarizer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Summarizer.MaxTokens == 0 {
		cfg.Summarizer.MaxTokens = 4096
	}
	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "gmail"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 587
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the settings shared by every command.
func (cfg *Config) Validate() error {
	switch cfg.Summarizer.Type {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unsupported summarizer type %q (supported: anthropic, openai)", cfg.Summarizer.Type)
	}
	switch cfg.Publisher.Type {
	case "gmail", "email", "stdout", "discord":
	default:
		return fmt.Errorf("config: unsupported publisher type %q (supported: gmail, email, stdout, discord)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == "discord" {
		if cfg.Publisher.Discord.WebhookURL == "" {
			return fmt.Errorf("config: publisher.discord.webhook_url is required for discord publisher")
		}
	}
	if cfg.Publisher.Type == "email" {
		if cfg.Publisher.Email.SMTPHost == "" {
			return fmt.Errorf("config: publisher.email.smtp_host is required for email publisher")
		}
		if cfg.Publisher.Email.From == "" {
			return fmt.Errorf("config: publisher.email.from is required for email publisher")
		}
	}
	if cfg.Mailbox.MaxResults < 0 {
		return fmt.Errorf("config: mailbox.max_results must not be negative")
	}
	for _, s := range cfg.Mailbox.Senders {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config: mailbox.senders contains an empty address")
		}
	}
	return nil
}

// Validate checks the settings needed to call the language model.
func (s SummarizerConfig) Validate() error {
	if s.APIKey == "" {
		env := "ANTHROPIC_API_KEY"
		if s.Type == "openai" {
			env = "OPENAI_API_KEY"
		}
		return fmt.Errorf("config: summarizer.api_key is required (set %s env var)", env)
	}
	if s.Model == "" {
		return fmt.Errorf("config: summarizer.model is required")
	}
	return nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
