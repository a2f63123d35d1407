package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/artifacts"
	"github.com/Philanthropists/newsletter-digest/internal/config"
	"github.com/Philanthropists/newsletter-digest/internal/dynamodb"
	"github.com/Philanthropists/newsletter-digest/internal/mail/gmail"
	"github.com/Philanthropists/newsletter-digest/internal/mail/imap"
	"github.com/Philanthropists/newsletter-digest/internal/mail/mbox"
	"github.com/Philanthropists/newsletter-digest/internal/render"
	"github.com/Philanthropists/newsletter-digest/internal/summarize"
	"github.com/Philanthropists/newsletter-digest/internal/summarize/lead"
	"github.com/Philanthropists/newsletter-digest/internal/summarize/localmodel"
	"github.com/Philanthropists/newsletter-digest/internal/summarize/openai"
	"github.com/Philanthropists/newsletter-digest/internal/twilio"
)

type BuildOptions struct {
	// DryRun never delivers, whatever the environment.
	DryRun bool
	// Prompt runs the Gmail consent flow when no token is stored. Nil means
	// non-interactive.
	Prompt gmail.AuthCodePrompt
	Now    time.Time
}

// Build wires the collaborators named by cfg. The returned close function
// releases whatever Build opened and is never nil.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions, log *zap.SugaredLogger) (Deps, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (Deps, func(), error) {
		closeAll()
		return Deps{}, func() {}, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	d := Deps{
		Limit:     cfg.Fetch.Limit,
		Recipient: cfg.Recipient,
		Deliver:   cfg.IsProd() && !opts.DryRun,
		Run:       artifacts.NewRunContext(cfg.Artifacts.Dir, now),
		Renderer:  render.Renderer{Labels: cfg.Summarize.Labels},
		Options: summarize.Options{
			Limits:      summarize.Limits{MaxOutputTokens: cfg.Summarize.MaxTokens},
			Timeout:     cfg.Summarize.Timeout,
			Concurrency: cfg.Summarize.Concurrency,
			Logger:      log,
		},
		Logger: log,
	}

	backends, err := buildBackends(cfg, log)
	if err != nil {
		return fail(err)
	}
	d.Backends = backends

	switch cfg.Fetch.Source {
	case config.SourceGmail:
		svc, err := buildGmail(ctx, cfg, opts.Prompt, log)
		if err != nil {
			return fail(err)
		}
		d.Source = svc
		d.Sender = svc
	case config.SourceIMAP:
		d.Source = imap.New(imap.Config{
			Addr:     cfg.Fetch.IMAP.Addr,
			Username: cfg.Fetch.IMAP.Username,
			Password: cfg.Fetch.IMAP.Password,
			Mailbox:  cfg.Fetch.IMAP.Mailbox,
		}, log)
	case config.SourceMbox:
		src, err := mbox.New(cfg.Fetch.Mbox, log)
		if err != nil {
			return fail(err)
		}
		d.Source = src
	default:
		return fail(fmt.Errorf("unknown fetch source %q", cfg.Fetch.Source))
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)
	d.Store = store

	if cfg.Twilio.AccountSid != "" {
		client, err := twilio.NewClient(cfg.Twilio.AccountSid, cfg.Twilio.AuthToken)
		if err != nil {
			return fail(err)
		}
		d.Notifier = twilio.Notifier{Client: client, From: cfg.Twilio.FromNumber, To: cfg.Twilio.ToNumber, Log: log}
	}

	return d, closeAll, nil
}

func buildBackends(cfg *config.Config, log *zap.SugaredLogger) (*summarize.Registry, error) {
	reg := summarize.NewRegistry()

	for _, name := range cfg.Summarize.Backends {
		var backend summarize.Backend
		switch name {
		case config.BackendOpenAI:
			client, err := openai.New(openai.Config{
				APIKey:  cfg.Summarize.OpenAI.APIKey,
				Model:   cfg.Summarize.OpenAI.Model,
				BaseURL: cfg.Summarize.OpenAI.BaseURL,
			}, log)
			if err != nil {
				return nil, err
			}
			backend = client
		case config.BackendLocalModel:
			client, err := localmodel.New(localmodel.Config{
				URL:      cfg.Summarize.LocalModel.URL,
				Model:    cfg.Summarize.LocalModel.Model,
				NumBeams: cfg.Summarize.LocalModel.NumBeams,
			}, log)
			if err != nil {
				return nil, err
			}
			backend = client
		case config.BackendLead:
			backend = lead.New(cfg.Summarize.LeadLength)
		default:
			return nil, fmt.Errorf("unknown summarize backend %q", name)
		}

		if err := reg.Register(name, backend); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func buildGmail(ctx context.Context, cfg *config.Config, prompt gmail.AuthCodePrompt, log *zap.SugaredLogger) (*gmail.Service, error) {
	oauthConfig, err := gmail.OAuthConfig(cfg.Fetch.Gmail.CredentialsFile)
	if err != nil {
		return nil, err
	}

	var tokens gmail.TokenStore
	switch cfg.Fetch.Gmail.TokenStore {
	case config.TokenStoreKeyring:
		tokens, err = gmail.OpenKeyringTokenStore(cfg.Fetch.Gmail.KeyringDir, "gmail-token")
		if err != nil {
			return nil, err
		}
	default:
		tokens = gmail.FileTokenStore{Path: cfg.Fetch.Gmail.TokenFile}
	}

	token, err := gmail.Token(ctx, oauthConfig, tokens, prompt)
	if err != nil {
		return nil, err
	}

	return gmail.New(ctx, oauthConfig, token, log)
}

func buildStore(ctx context.Context, cfg *config.Config) (artifacts.Store, func(), error) {
	noop := func() {}

	switch cfg.Artifacts.Store {
	case config.StoreFile:
		return artifacts.FileStore{}, noop, nil
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.Artifacts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, noop, err
			}
		}
		store, err := artifacts.OpenSQLStore(cfg.Artifacts.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoreDynamo:
		client, err := dynamodb.NewClient(ctx, cfg.Artifacts.DynamoRegion)
		if err != nil {
			return nil, noop, fmt.Errorf("error creating dynamodb client: %w", err)
		}
		return artifacts.DynamoStore{Client: client, Table: cfg.Artifacts.DynamoTable}, noop, nil
	case config.StoreNone:
		return artifacts.Nop{}, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown artifacts store %q", cfg.Artifacts.Store)
}

// OpenLoader opens the configured artifacts store for reading back earlier
// runs. Only the sqlite and dynamodb stores keep artifacts by run ID.
func OpenLoader(ctx context.Context, cfg *config.Config) (artifacts.Loader, func(), error) {
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, closeStore, err
	}

	loader, ok := store.(artifacts.Loader)
	if !ok {
		closeStore()
		return nil, func() {}, fmt.Errorf("artifacts store %q cannot load runs by ID", cfg.Artifacts.Store)
	}
	return loader, closeStore, nil
}
