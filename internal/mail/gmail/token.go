package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/Philanthropists/newsletter-digest/internal/logger"
)

const keyringService = "newsletter-digest"

var ErrTokenNotFound = errors.New("oauth token not found")

// TokenStore persists the user's access and refresh tokens between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON in a local file, token.json by
// default.
type FileTokenStore struct {
	Path string
}

func (s FileTokenStore) path() string {
	if s.Path == "" {
		return "token.json"
	}
	return s.Path
}

func (s FileTokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token file %s: %w", s.path(), err)
	}
	return tok, nil
}

func (s FileTokenStore) Save(token *oauth2.Token) error {
	if dir := filepath.Dir(s.path()); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

// KeyringTokenStore keeps the token in the system keyring under Key.
type KeyringTokenStore struct {
	Ring keyring.Keyring
	Key  string
}

// OpenKeyringTokenStore opens the system keyring, falling back to an
// encrypted file under fileDir when no native backend is available.
func OpenKeyringTokenStore(fileDir, key string) (*KeyringTokenStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	return &KeyringTokenStore{Ring: ring, Key: key}, nil
}

func (s *KeyringTokenStore) Load() (*oauth2.Token, error) {
	item, err := s.Ring.Get(s.Key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting token %q: %w", s.Key, err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, tok); err != nil {
		return nil, fmt.Errorf("decoding token %q: %w", s.Key, err)
	}
	return tok, nil
}

func (s *KeyringTokenStore) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	if err := s.Ring.Set(keyring.Item{Key: s.Key, Label: "Gmail OAuth token", Data: data}); err != nil {
		return fmt.Errorf("setting token %q: %w", s.Key, err)
	}
	return nil
}

// AuthCodePrompt shows the consent URL and returns the code the user pasted back.
type AuthCodePrompt func(authURL string) (string, error)

func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	// If modifying these scopes, delete your previously saved token.
	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return config, nil
}

// Token returns the stored token, running the consent flow only when the
// store is empty. A refreshed token is written back to the store.
func Token(ctx context.Context, config *oauth2.Config, store TokenStore, prompt AuthCodePrompt) (*oauth2.Token, error) {
	log := logger.GetLogger()

	tok, err := store.Load()
	if err == nil {
		fresh, err := config.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("refreshing oauth token: %w", err)
		}
		if fresh.AccessToken != tok.AccessToken {
			if err := store.Save(fresh); err != nil {
				log.Warnw("Could not store refreshed token", "error", err)
			}
		}
		return fresh, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}
	if prompt == nil {
		return nil, fmt.Errorf("no stored oauth token and no way to ask for consent: %w", err)
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err = config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}

	log.Infow("Saving oauth token")
	if err := store.Save(tok); err != nil {
		return nil, err
	}

	return tok, nil
}
