// Package config loads run settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvProd = "prod"

	SourceGmail = "gmail"
	SourceIMAP  = "imap"
	SourceMbox  = "mbox"

	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreDynamo = "dynamodb"
	StoreNone   = "none"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"

	BackendOpenAI     = "openai"
	BackendLocalModel = "local_model"
	BackendLead       = "lead"

	// ConfigPathEnv names the variable consulted when no --config flag is given.
	ConfigPathEnv = "NEWSLETTER_DIGEST_CONFIG"
)

type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenStore      string `mapstructure:"token_store"`
	TokenFile       string `mapstructure:"token_file"`
	KeyringDir      string `mapstructure:"keyring_dir"`
}

type IMAPConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
}

type FetchConfig struct {
	Source string      `mapstructure:"source"`
	Limit  int         `mapstructure:"limit"`
	Gmail  GmailConfig `mapstructure:"gmail"`
	IMAP   IMAPConfig  `mapstructure:"imap"`
	Mbox   string      `mapstructure:"mbox"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type LocalModelConfig struct {
	URL      string `mapstructure:"url"`
	Model    string `mapstructure:"model"`
	NumBeams int    `mapstructure:"num_beams"`
}

type SummarizeConfig struct {
	// Backends lists the backends to run, in the order their sections render.
	Backends    []string          `mapstructure:"backends"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Concurrency int               `mapstructure:"concurrency"`
	Labels      map[string]string `mapstructure:"labels"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	LocalModel  LocalModelConfig  `mapstructure:"local_model"`
	LeadLength  int               `mapstructure:"lead_sentences"`
}

type ArtifactsConfig struct {
	Store        string `mapstructure:"store"`
	Dir          string `mapstructure:"dir"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	DynamoTable  string `mapstructure:"dynamodb_table"`
	DynamoRegion string `mapstructure:"dynamodb_region"`
}

type TwilioConfig struct {
	AccountSid string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	ToNumber   string `mapstructure:"to_number"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	Env       string          `mapstructure:"env"`
	Recipient string          `mapstructure:"recipient"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	Log       LogConfig       `mapstructure:"log"`
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("recipient", "")

	v.SetDefault("fetch.source", SourceGmail)
	v.SetDefault("fetch.limit", 5)
	v.SetDefault("fetch.gmail.credentials_file", "credentials.json")
	v.SetDefault("fetch.gmail.token_store", TokenStoreFile)
	v.SetDefault("fetch.gmail.token_file", "token.json")
	v.SetDefault("fetch.gmail.keyring_dir", "~/.config/newsletter-digest/credentials")
	v.SetDefault("fetch.imap.addr", "")
	v.SetDefault("fetch.imap.username", "")
	v.SetDefault("fetch.imap.password", "")
	v.SetDefault("fetch.imap.mailbox", "INBOX")
	v.SetDefault("fetch.mbox", "")

	v.SetDefault("summarize.backends", []string{BackendOpenAI, BackendLocalModel})
	v.SetDefault("summarize.max_tokens", 1000)
	v.SetDefault("summarize.timeout", 2*time.Minute)
	v.SetDefault("summarize.concurrency", 4)
	v.SetDefault("summarize.labels", map[string]string{
		BackendOpenAI:     "Open AI",
		BackendLocalModel: "My Model",
		BackendLead:       "Lead",
	})
	v.SetDefault("summarize.openai.api_key", "")
	v.SetDefault("summarize.openai.model", "gpt-3.5-turbo")
	v.SetDefault("summarize.openai.base_url", "")
	v.SetDefault("summarize.local_model.url", "http://localhost:8080/models/facebook/bart-large-cnn")
	v.SetDefault("summarize.local_model.model", "facebook/bart-large-cnn")
	v.SetDefault("summarize.local_model.num_beams", 2)
	v.SetDefault("summarize.lead_sentences", 3)

	v.SetDefault("artifacts.store", StoreFile)
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.sqlite_path", "artifacts/artifacts.db")
	v.SetDefault("artifacts.dynamodb_table", "newsletter-digest-artifacts")
	v.SetDefault("artifacts.dynamodb_region", "us-east-1")

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_number", "")
	v.SetDefault("twilio.to_number", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path (or the file named by NEWSLETTER_DIGEST_CONFIG when path
// is empty) and applies environment overrides. DIGEST_FETCH_LIMIT overrides
// fetch.limit; ENV, OPENAI_API_KEY and EMAIL_RECIPIENT are also honored. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range map[string][]string{
		"env":                      {"DIGEST_ENV", "ENV"},
		"recipient":                {"DIGEST_RECIPIENT", "EMAIL_RECIPIENT"},
		"summarize.openai.api_key": {"DIGEST_SUMMARIZE_OPENAI_API_KEY", "OPENAI_API_KEY"},
	} {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Env == "" {
		errs = append(errs, errors.New("env is required"))
	}
	if c.IsProd() && c.Recipient == "" {
		errs = append(errs, errors.New("recipient (EMAIL_RECIPIENT) is required in prod"))
	}
	if c.Fetch.Limit <= 0 {
		errs = append(errs, fmt.Errorf("fetch.limit must be positive, got %d", c.Fetch.Limit))
	}

	switch c.Fetch.Source {
	case SourceGmail:
		if c.Fetch.Gmail.TokenStore != TokenStoreFile && c.Fetch.Gmail.TokenStore != TokenStoreKeyring {
			errs = append(errs, fmt.Errorf("unknown gmail token store %q", c.Fetch.Gmail.TokenStore))
		}
	case SourceIMAP:
		if c.Fetch.IMAP.Addr == "" || c.Fetch.IMAP.Username == "" {
			errs = append(errs, errors.New("fetch.imap.addr and fetch.imap.username are required for imap"))
		}
	case SourceMbox:
		if c.Fetch.Mbox == "" {
			errs = append(errs, errors.New("fetch.mbox is required for mbox"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown fetch source %q", c.Fetch.Source))
	}
	if c.IsProd() && c.Fetch.Source != SourceGmail {
		errs = append(errs, errors.New("delivery in prod needs the gmail source"))
	}

	if len(c.Summarize.Backends) == 0 {
		errs = append(errs, errors.New("at least one summarize backend is required"))
	}
	seen := map[string]bool{}
	for _, name := range c.Summarize.Backends {
		switch name {
		case BackendOpenAI:
			if c.Summarize.OpenAI.APIKey == "" {
				errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai backend"))
			}
		case BackendLocalModel, BackendLead:
		default:
			errs = append(errs, fmt.Errorf("unknown summarize backend %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("summarize backend %q listed twice", name))
		}
		seen[name] = true
	}

	switch c.Artifacts.Store {
	case StoreFile, StoreSQLite, StoreDynamo, StoreNone:
	default:
		errs = append(errs, fmt.Errorf("unknown artifacts store %q", c.Artifacts.Store))
	}

	return errors.Join(errs...)
}
