package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "app:\n  port: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 38472, cfg.App.Port)
	assert.Equal(t, 300, cfg.Polling.IngestSeconds)
	assert.Equal(t, 993, cfg.Email.IMAPPort)
	assert.True(t, cfg.Email.Secure)
	assert.Equal(t, "INBOX", cfg.Email.Mailbox)
	assert.Equal(t, 50, cfg.Email.BatchLimit)
	assert.Equal(t, 200, cfg.Email.MaxInitialSync)
	assert.Equal(t, 100, cfg.Backfill.BatchSize)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 12, cfg.OpenAI.TimeoutSeconds)
}

func TestLoadEnvOverridesYaml(t *testing.T) {
	path := writeTempConfig(t, `
email:
  imap_host: imap.yaml.example
  username: yaml@example.com
  batch_limit: 25
`)
	t.Setenv("IMAP_HOST", "imap.env.example")
	t.Setenv("IMAP_PASSWORD", "from-env")
	t.Setenv("INGEST_BATCH_LIMIT", "75")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.env.example", cfg.Email.IMAPHost)
	assert.Equal(t, "yaml@example.com", cfg.Email.Username)
	assert.Equal(t, "from-env", cfg.Email.AppPassword)
	assert.Equal(t, 75, cfg.Email.BatchLimit)
}

func TestNormalizeAndValidate(t *testing.T) {
	var cfg Config
	cfg, vr := NormalizeAndValidate(cfg)
	assert.True(t, vr.OK())
	assert.Equal(t, 38472, cfg.App.Port)

	cfg.App.Port = -1
	cfg.Scoring.ExtraRules = []Rule{{Class: "party_invite", Any: []string{"cake"}}}
	_, vr = NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())
	assert.Len(t, vr.Errors, 2)
}

func TestRequireIngest(t *testing.T) {
	var cfg Config
	err := RequireIngest(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email.imap_host")
	assert.Contains(t, err.Error(), "app_password")

	cfg.Email.IMAPHost = "imap.example.com"
	cfg.Email.Username = "user@example.com"
	cfg.Email.AppPassword = "secret"
	cfg.Email.Mailbox = "INBOX"
	assert.NoError(t, RequireIngest(cfg))
}

func TestSaveAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	var cfg Config
	cfg, vr := NormalizeAndValidate(cfg)
	require.True(t, vr.OK())
	cfg.Email.IMAPHost = "imap.example.com"
	cfg.Email.AppPassword = "must-not-persist"
	cfg.OpenAI.APIKey = "must-not-persist"

	require.NoError(t, SaveAtomic(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", loaded.Email.IMAPHost)
	// Secrets never land in the yaml file.
	assert.Empty(t, loaded.Email.AppPassword)
	assert.Empty(t, loaded.OpenAI.APIKey)

	// Saving again keeps a .bak of the previous version.
	cfg.Email.IMAPHost = "imap2.example.com"
	require.NoError(t, SaveAtomic(path, cfg))
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestEnsureUserConfig(t *testing.T) {
	srcDir := t.TempDir()
	defaultPath := filepath.Join(srcDir, "config.yml")
	require.NoError(t, os.WriteFile(defaultPath, []byte("app:\n  port: 12345\n"), 0o644))

	dataDir := t.TempDir()
	userPath, err := EnsureUserConfig(dataDir, defaultPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "config.yml"), userPath)

	// Second call leaves the user copy untouched.
	require.NoError(t, os.WriteFile(userPath, []byte("app:\n  port: 54321\n"), 0o644))
	again, err := EnsureUserConfig(dataDir, defaultPath)
	require.NoError(t, err)
	assert.Equal(t, userPath, again)
	cfg, err := Load(again)
	require.NoError(t, err)
	assert.Equal(t, 54321, cfg.App.Port)
}
