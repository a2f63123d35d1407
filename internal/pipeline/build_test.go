package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philanthropists/newsletter-digest/internal/artifacts"
	"github.com/Philanthropists/newsletter-digest/internal/config"
	"github.com/Philanthropists/newsletter-digest/internal/mail/mbox"
)

const inbox = "From news@cats.example Mon Oct 12 08:00:00 2026\n" +
	"Subject: Cats\n" +
	"From: news@cats.example\n" +
	"\n" +
	"Cats are back. They never left.\n"

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "inbox.mbox")
	require.NoError(t, os.WriteFile(path, []byte(inbox), 0o600))

	return &config.Config{
		Env:   "dev",
		Fetch: config.FetchConfig{Source: config.SourceMbox, Mbox: path, Limit: 5},
		Summarize: config.SummarizeConfig{
			Backends:   []string{config.BackendLead},
			LeadLength: 1,
			Labels:     map[string]string{config.BackendLead: "Lead"},
		},
		Artifacts: config.ArtifactsConfig{Store: config.StoreSQLite, Dir: dir, SQLitePath: filepath.Join(dir, "db", "artifacts.db")},
	}
}

func TestBuildOffline(t *testing.T) {
	cfg := offlineConfig(t)
	now := time.Date(2026, 10, 19, 7, 5, 0, 0, time.UTC)

	deps, closeDeps, err := Build(context.Background(), cfg, BuildOptions{Now: now}, nil)
	require.NoError(t, err)
	defer closeDeps()

	assert.IsType(t, &mbox.Source{}, deps.Source)
	assert.IsType(t, &artifacts.SQLStore{}, deps.Store)
	assert.Equal(t, []string{config.BackendLead}, deps.Backends.Names())
	assert.False(t, deps.Deliver)
	assert.Nil(t, deps.Notifier)
	assert.Equal(t, now, deps.Run.Timestamp)

	report, err := Run(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summarized)
	assert.Contains(t, report.DigestLocation, "stage=email")

	closeDeps()

	loader, closeLoader, err := OpenLoader(context.Background(), cfg)
	require.NoError(t, err)
	defer closeLoader()

	digest, err := loader.Load(context.Background(), deps.Run.ID, artifacts.StageEmail)
	require.NoError(t, err)
	assert.Contains(t, string(digest), "<h3>Lead Summary</h3>")
	assert.Contains(t, string(digest), "Cats are back.")
}

func TestOpenLoaderNeedsRunIndexedStore(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Artifacts.Store = config.StoreFile

	_, closeLoader, err := OpenLoader(context.Background(), cfg)
	assert.ErrorContains(t, err, "cannot load runs")
	closeLoader()
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Summarize.Backends = []string{"gpt-9"}

	_, closeDeps, err := Build(context.Background(), cfg, BuildOptions{}, nil)
	assert.Error(t, err)
	closeDeps()
}

func TestBuildOpenAIRequiresKey(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Summarize.Backends = []string{config.BackendOpenAI}

	_, _, err := Build(context.Background(), cfg, BuildOptions{}, nil)
	assert.Error(t, err)
}
