package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoToken is returned by TokenStore.Load when no token has been saved yet.
var ErrNoToken = errors.New("no cached oauth token")

// LoadOAuthConfig reads an installed-app client secrets file and scopes it to sending mail.
func LoadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return cfg, nil
}

// TokenStore persists an OAuth token as JSON on disk.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the cached token. It returns ErrNoToken if the file does not exist.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.path, err)
	}
	return &tok, nil
}

// Save writes the token with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// TokenFromWeb runs the installed-app consent flow: it prints the consent URL to out and
// reads the authorization code from in.
func TokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open the following link in your browser, then paste the authorization code:\n%v\n", authURL)

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// PersistingTokenSource writes every newly issued token back to its store, so refreshed
// access tokens survive across runs.
type PersistingTokenSource struct {
	src   oauth2.TokenSource
	store *TokenStore
	mu    sync.Mutex
	last  string
}

// NewPersistingTokenSource wraps src. initial is the token already on disk, if any.
func NewPersistingTokenSource(src oauth2.TokenSource, store *TokenStore, initial *oauth2.Token) *PersistingTokenSource {
	p := &PersistingTokenSource{src: src, store: store}
	if initial != nil {
		p.last = initial.AccessToken
	}
	return p
}

// Token implements oauth2.TokenSource.
func (p *PersistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// GmailAuth holds what NewGmailService needs to authorize.
type GmailAuth struct {
	CredentialsPath string
	TokenPath       string
	Prompt          io.Reader
	PromptOut       io.Writer
}

// NewGmailService authorizes with the cached token (running the consent flow if there is
// none) and returns a Gmail API service.
func NewGmailService(ctx context.Context, auth GmailAuth) (*gmail.Service, error) {
	cfg, err := LoadOAuthConfig(auth.CredentialsPath)
	if err != nil {
		return nil, err
	}
	store := NewTokenStore(auth.TokenPath)
	tok, err := store.Load()
	var initial *oauth2.Token
	switch {
	case errors.Is(err, ErrNoToken):
		tok, err = TokenFromWeb(ctx, cfg, auth.Prompt, auth.PromptOut)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		initial = tok
	}

	ts := NewPersistingTokenSource(cfg.TokenSource(ctx, tok), store, initial)
	srv, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(nil, ts)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return srv, nil
}
