// Package auth stores the API token used to reach a remote `todo serve`.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvToken overrides the stored token when set.
const EnvToken = "TADA_TOKEN"

// Where a loaded token came from.
const (
	SourceEnv  = "env"
	SourceFile = "file"
)

const vaultFile = "credentials.json"

// Credentials is a bearer token together with its provenance.
type Credentials struct {
	Token     string     `json:"token"`
	Source    string     `json:"-"`
	SavedAt   time.Time  `json:"saved_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has a known expiry before now.
func (c *Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Vault keeps one credentials file in a directory.
type Vault struct {
	dir string
}

// NewVault returns a vault rooted at dir.
func NewVault(dir string) *Vault {
	return &Vault{dir: dir}
}

// DefaultVault is the vault in ~/.tada.
func DefaultVault() (*Vault, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("auth: locate home: %w", err)
	}
	return NewVault(filepath.Join(home, ".tada")), nil
}

// Path is the credentials file location.
func (v *Vault) Path() string {
	return filepath.Join(v.dir, vaultFile)
}

// Load returns the active credentials: EnvToken first, then the file.
// It returns nil, nil when neither holds a token.
func (v *Vault) Load() (*Credentials, error) {
	if tok := cleanToken(os.Getenv(EnvToken)); tok != "" {
		return &Credentials{Token: tok, Source: SourceEnv}, nil
	}

	raw, err := os.ReadFile(v.Path())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("auth: read %s: %w", v.Path(), err)
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", v.Path(), err)
	}
	c.Token = cleanToken(c.Token)
	if c.Token == "" {
		return nil, nil
	}
	c.Source = SourceFile
	return &c, nil
}

// Save writes token to the vault with mode 0600. A nil expires is filled
// from the exp claim when the token is a JWT.
func (v *Vault) Save(token string, expires *time.Time) (*Credentials, error) {
	c := &Credentials{Token: cleanToken(token), Source: SourceFile, SavedAt: time.Now().UTC(), ExpiresAt: expires}
	if c.Token == "" {
		return nil, errors.New("auth: empty token")
	}
	if c.ExpiresAt == nil {
		if claims, err := Inspect(c.Token); err == nil {
			c.ExpiresAt = claims.ExpiresAt
		}
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("auth: encode: %w", err)
	}
	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return nil, fmt.Errorf("auth: create %s: %w", v.dir, err)
	}

	tmp, err := os.CreateTemp(v.dir, vaultFile+".*")
	if err != nil {
		return nil, fmt.Errorf("auth: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("auth: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("auth: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), v.Path()); err != nil {
		return nil, fmt.Errorf("auth: install %s: %w", v.Path(), err)
	}
	return c, nil
}

// Forget removes the credentials file and reports whether there was one.
func (v *Vault) Forget() (bool, error) {
	err := os.Remove(v.Path())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("auth: remove %s: %w", v.Path(), err)
	}
	return true, nil
}

// TokenSource returns a func that reloads the token on every call, for
// clients that attach it per request. Read failures are logged and yield "".
func (v *Vault) TokenSource(logger *slog.Logger) func() string {
	return func() string {
		c, err := v.Load()
		if err != nil {
			logger.Warn("credentials unreadable, sending no token", slog.String("error", err.Error()))
			return ""
		}
		if c == nil {
			return ""
		}
		if c.Expired(time.Now()) {
			logger.Warn("token expired, run: todo auth login", slog.String("source", c.Source))
		}
		return c.Token
	}
}

// cleanToken trims whitespace and an optional "Bearer " scheme.
func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	if scheme, rest, ok := strings.Cut(s, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return s
}
