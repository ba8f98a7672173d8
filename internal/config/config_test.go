package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
mailbox:
  senders: ["opinions@example.com", "orders@example.com"]
  max_results: 10
store:
  summary_dir: /var/lib/court-digest
publisher:
  type: stdout
  email:
    to: [team@example.com]
    bcc: [audit@example.com]
summarizer:
  type: anthropic
  api_key: test_api_key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Mailbox.Senders) != 2 || cfg.Mailbox.Senders[1] != "orders@example.com" {
		t.Errorf("Expected two senders, got %v", cfg.Mailbox.Senders)
	}
	if cfg.Mailbox.MaxResults != 10 {
		t.Errorf("Expected max_results 10, got %d", cfg.Mailbox.MaxResults)
	}
	if cfg.Store.SummaryDir != "/var/lib/court-digest" {
		t.Errorf("Expected summary_dir '/var/lib/court-digest', got '%s'", cfg.Store.SummaryDir)
	}
	if cfg.Publisher.Type != "stdout" {
		t.Errorf("Expected publisher type 'stdout', got '%s'", cfg.Publisher.Type)
	}
	if len(cfg.Publisher.Email.Bcc) != 1 || cfg.Publisher.Email.Bcc[0] != "audit@example.com" {
		t.Errorf("Expected bcc [audit@example.com], got %v", cfg.Publisher.Email.Bcc)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env_key")
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Mailbox.Senders) != 1 || cfg.Mailbox.Senders[0] != DefaultSender {
		t.Errorf("Expected default sender %s, got %v", DefaultSender, cfg.Mailbox.Senders)
	}
	if cfg.Mailbox.CredentialsFile != "credentials.json" {
		t.Errorf("Expected default credentials_file 'credentials.json', got '%s'", cfg.Mailbox.CredentialsFile)
	}
	if cfg.Mailbox.TokenFile != "token.json" {
		t.Errorf("Expected default token_file 'token.json', got '%s'", cfg.Mailbox.TokenFile)
	}
	if cfg.Mailbox.FooterMarker != DefaultFooterMarker {
		t.Errorf("Expected default footer marker, got '%s'", cfg.Mailbox.FooterMarker)
	}
	if cfg.Fetcher.PDFDir != "pdfs" {
		t.Errorf("Expected default pdf_dir 'pdfs', got '%s'", cfg.Fetcher.PDFDir)
	}
	if cfg.Fetcher.RequestIntervalMS != 500 {
		t.Errorf("Expected default request_interval_ms 500, got %d", cfg.Fetcher.RequestIntervalMS)
	}
	if cfg.Store.SummaryDir != "summaries" {
		t.Errorf("Expected default summary_dir 'summaries', got '%s'", cfg.Store.SummaryDir)
	}
	if cfg.Summarizer.Type != "anthropic" {
		t.Errorf("Expected default summarizer type 'anthropic', got '%s'", cfg.Summarizer.Type)
	}
	if cfg.Summarizer.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected default model 'claude-sonnet-4-20250514', got '%s'", cfg.Summarizer.Model)
	}
	if cfg.Summarizer.APIKey != "env_key" {
		t.Errorf("Expected API key from ANTHROPIC_API_KEY, got '%s'", cfg.Summarizer.APIKey)
	}
	if cfg.Summarizer.MaxTokens != 4096 {
		t.Errorf("Expected default max_tokens 4096, got %d", cfg.Summarizer.MaxTokens)
	}
	if cfg.Publisher.Type != "gmail" {
		t.Errorf("Expected default publisher type 'gmail', got '%s'", cfg.Publisher.Type)
	}
	if cfg.Publisher.Email.SMTPPort != 587 {
		t.Errorf("Expected default SMTP port 587, got %d", cfg.Publisher.Email.SMTPPort)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestOpenAIDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, "summarizer:\n  type: openai\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Summarizer.Model != "gpt-4o" {
		t.Errorf("Expected default model 'gpt-4o', got '%s'", cfg.Summarizer.Model)
	}
	if cfg.Summarizer.APIKey != "sk-test" {
		t.Errorf("Expected API key from OPENAI_API_KEY, got '%s'", cfg.Summarizer.APIKey)
	}
}

func TestDefaultWithoutFile(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Store.SummaryDir != "summaries" {
		t.Errorf("Expected default summary_dir 'summaries', got '%s'", cfg.Store.SummaryDir)
	}
}

func TestSummarizerValidation(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load(writeConfig(t, "publisher:\n  type: stdout\n"))
	if err != nil {
		t.Fatalf("Loading without an API key should succeed: %v", err)
	}
	err = cfg.Summarizer.Validate()
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("Expected hint about ANTHROPIC_API_KEY, got: %v", err)
	}

	cfg.Summarizer.APIKey = "k"
	if err := cfg.Summarizer.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestTypeValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{"unknown summarizer", "summarizer:\n  type: gemini\n", "unsupported summarizer type"},
		{"unknown publisher", "publisher:\n  type: slack\n", "unsupported publisher type"},
		{"empty sender", "mailbox:\n  senders: [\"\"]\n", "empty address"},
		{"negative max results", "mailbox:\n  max_results: -1\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestDiscordValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "publisher:\n  type: discord\n"))
	if err == nil {
		t.Fatal("Expected validation error for missing discord webhook_url")
	}
	if !strings.Contains(err.Error(), "webhook_url is required") {
		t.Errorf("Expected webhook_url error, got: %v", err)
	}
}

func TestEmailValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "missing smtp_host",
			config: `
publisher:
  type: email
  email:
    from: sender@example.com
    to: [recipient@example.com]
`,
			wantErr: "smtp_host is required",
		},
		{
			name: "missing from",
			config: `
publisher:
  type: email
  email:
    smtp_host: smtp.example.com
    to: [recipient@example.com]
`,
			wantErr: "from is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestGmailPublisherNeedsNoSMTP(t *testing.T) {
	cfg, err := Load(writeConfig(t, "publisher:\n  type: gmail\n  email:\n    to: [a@example.com]\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Publisher.Email.SMTPHost != "" {
		t.Errorf("Expected no SMTP host, got '%s'", cfg.Publisher.Email.SMTPHost)
	}
}

func TestFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("Expected 'failed to read' error, got: %v", err)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded_value")

	input := "value: ${TEST_VAR}"
	expanded := expandEnvVars(input)
	expected := "value: expanded_value"

	if expanded != expected {
		t.Errorf("Expected '%s', got '%s'", expected, expanded)
	}
}

func TestEnvVarExpansionUnset(t *testing.T) {
	os.Unsetenv("UNSET_VAR_12345")

	input := "value: ${UNSET_VAR_12345}"
	expanded := expandEnvVars(input)

	if expanded != input {
		t.Errorf("Expected unset var to remain as-is, got '%s'", expanded)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("COURT_DIGEST_DOTENV_TEST=from_file\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("COURT_DIGEST_DOTENV_TEST") })

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("COURT_DIGEST_DOTENV_TEST"); got != "from_file" {
		t.Errorf("Expected value from .env, got '%s'", got)
	}

	path := writeConfig(t, "store:\n  summary_dir: ${COURT_DIGEST_DOTENV_TEST}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.SummaryDir != "from_file" {
		t.Errorf("Expected expanded summary_dir, got '%s'", cfg.Store.SummaryDir)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("COURT_DIGEST_KEEP=file\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("COURT_DIGEST_KEEP", "process")

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("COURT_DIGEST_KEEP"); got != "process" {
		t.Errorf("Expected existing variable to win, got '%s'", got)
	}
}
