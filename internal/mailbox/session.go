package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

var (
	// ErrNoToken is returned when no OAuth token has been stored yet.
	ErrNoToken = errors.New("mailbox: no OAuth token; run the auth command first")

	// ErrAuth wraps token refresh failures.
	ErrAuth = errors.New("mailbox: authorization failed")
)

// Scopes requested for the mailbox account: read notifications, send digests.
var Scopes = []string{gmail.GmailReadonlyScope, gmail.GmailSendScope}

// Session owns the OAuth token for the mailbox account. Callers load it,
// refresh it before use, and persist it afterwards so a rotated token
// survives the process.
type Session struct {
	config    *oauth2.Config
	tokenPath string
	token     *oauth2.Token
	dirty     bool
	logger    *zap.Logger
}

// LoadSession reads OAuth client credentials and the stored token. A missing
// token file is not an error; the session then has no token until Exchange.
func LoadSession(credentialsPath, tokenPath string, logger *zap.Logger) (*Session, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("mailbox: read credentials %s: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(creds, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("mailbox: parse credentials %s: %w", credentialsPath, err)
	}

	s := NewSession(cfg, tokenPath, logger)
	if err := s.loadToken(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSession builds a session from an OAuth config without touching disk.
func NewSession(cfg *oauth2.Config, tokenPath string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{config: cfg, tokenPath: tokenPath, logger: logger}
}

func (s *Session) loadToken() error {
	data, err := os.ReadFile(s.tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no stored token", zap.String("path", s.tokenPath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mailbox: read token %s: %w", s.tokenPath, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("mailbox: parse token %s: %w", s.tokenPath, err)
	}
	s.token = &tok
	return nil
}

// HasToken reports whether a token is loaded.
func (s *Session) HasToken() bool { return s.token != nil }

// Token returns the current token, or nil.
func (s *Session) Token() *oauth2.Token { return s.token }

// Refresh renews the access token when it has expired.
func (s *Session) Refresh(ctx context.Context) error {
	if s.token == nil {
		return ErrNoToken
	}
	tok, err := s.config.TokenSource(ctx, s.token).Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if tok.AccessToken != s.token.AccessToken {
		s.logger.Info("refreshed OAuth token", zap.Time("expiry", tok.Expiry))
		s.token = tok
		s.dirty = true
	}
	return nil
}

// Persist writes the token back to disk if it changed since it was loaded.
func (s *Session) Persist() error {
	if s.token == nil || !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.token, "", "  ")
	if err != nil {
		return fmt.Errorf("mailbox: encode token: %w", err)
	}
	if dir := filepath.Dir(s.tokenPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mailbox: create token dir: %w", err)
		}
	}
	tmp := s.tokenPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("mailbox: write token: %w", err)
	}
	if err := os.Rename(tmp, s.tokenPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mailbox: write token: %w", err)
	}
	s.dirty = false
	s.logger.Debug("persisted OAuth token", zap.String("path", s.tokenPath))
	return nil
}

// HTTPClient returns a client that authorizes requests with the session token.
func (s *Session) HTTPClient(ctx context.Context) (*http.Client, error) {
	if s.token == nil {
		return nil, ErrNoToken
	}
	return s.config.Client(ctx, s.token), nil
}

// AuthCodeURL is the consent page the user visits to authorize the account.
func (s *Session) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and persists it.
func (s *Session) Exchange(ctx context.Context, code string) error {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	s.token = tok
	s.dirty = true
	return s.Persist()
}
