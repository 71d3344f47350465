package enrich

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/store"
)

type fakeCompleter struct {
	fn func(messages []Message) (*Completion, error)
}

func (f fakeCompleter) Complete(_ context.Context, _ string, messages []Message, _ float64, _ int) (*Completion, error) {
	return f.fn(messages)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.OpenAI.BatchSize = 10
	cfg.OpenAI.PromptPricePer1K = 0.00015
	cfg.OpenAI.CompletionPricePer1K = 0.0006
	cfg.OpenAI.TimeoutSeconds = 1
	return cfg
}

func seedPending(t *testing.T, db *sql.DB, messageID, subject string) {
	t.Helper()
	require.NoError(t, store.UpsertEmail(context.Background(), db, store.EmailUpsert{
		MessageID: messageID,
		Subject:   subject,
		FromEmail: "careers@acme.com",
		Class:     "applied",
		Body:      "your application was received",
		Mailbox:   "INBOX",
	}))
}

func TestRunParsesPendingRows(t *testing.T) {
	db := openTestDB(t)
	seedPending(t, db, "e1@x", "Thank you for applying")

	r := Runner{
		DB:     db,
		Logger: store.NewIngestionLogger(db, 40),
		Completer: fakeCompleter{fn: func([]Message) (*Completion, error) {
			return &Completion{
				Content: `{"company":"Acme","role":"Software Engineer","status":"applied","next_action":""}`,
				Usage:   Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
			}, nil
		}},
		Cfg: testConfig(),
	}

	stats := r.Run(context.Background())
	assert.Equal(t, 1, stats.Selected)
	assert.Equal(t, 1, stats.Parsed)
	assert.Zero(t, stats.Failed)

	emails, err := store.ListEmails(context.Background(), db, store.ListEmailsOpts{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, store.ParseStatusParsed, emails[0].ParseStatus)
	assert.Contains(t, emails[0].ParsedJSON, `"company":"Acme"`)

	var calls int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM openai_call_log;`).Scan(&calls))
	assert.Equal(t, 1, calls)
}

func TestRunWrapsMalformedJSON(t *testing.T) {
	db := openTestDB(t)
	seedPending(t, db, "e1@x", "Thank you for applying")

	r := Runner{
		DB:     db,
		Logger: store.NewIngestionLogger(db, 40),
		Completer: fakeCompleter{fn: func([]Message) (*Completion, error) {
			return &Completion{Content: "Sure! The company is Acme."}, nil
		}},
		Cfg: testConfig(),
	}

	stats := r.Run(context.Background())
	assert.Equal(t, 1, stats.Parsed)

	emails, err := store.ListEmails(context.Background(), db, store.ListEmailsOpts{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, store.ParseStatusParsed, emails[0].ParseStatus)
	assert.JSONEq(t, `{"raw":"Sure! The company is Acme."}`, emails[0].ParsedJSON)
}

func TestRunStripsMarkdownFences(t *testing.T) {
	assert.Equal(t, `{"company":"Acme"}`, normalizeParsedJSON("```json\n{\"company\":\"Acme\"}\n```"))
	assert.Equal(t, `{"company":"Acme"}`, normalizeParsedJSON(`{"company":"Acme"}`))
}

func TestRunIsolatesFailingRows(t *testing.T) {
	db := openTestDB(t)
	seedPending(t, db, "bad@x", "ZZZ fails")
	seedPending(t, db, "good@x", "Thank you for applying")

	r := Runner{
		DB:     db,
		Logger: store.NewIngestionLogger(db, 40),
		Completer: fakeCompleter{fn: func(messages []Message) (*Completion, error) {
			for _, m := range messages {
				if m.Role == "user" && strings.Contains(m.Content, "ZZZ") {
					return nil, errors.New("model overloaded")
				}
			}
			return &Completion{Content: `{"company":"Acme"}`}, nil
		}},
		Cfg: testConfig(),
	}

	stats := r.Run(context.Background())
	assert.Equal(t, 2, stats.Selected)
	assert.Equal(t, 1, stats.Parsed)
	assert.Equal(t, 1, stats.Failed)

	emails, err := store.ListEmails(context.Background(), db, store.ListEmailsOpts{})
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, e := range emails {
		statuses[e.MessageID] = e.ParseStatus
	}
	assert.Equal(t, store.ParseStatusError, statuses["bad@x"])
	assert.Equal(t, store.ParseStatusParsed, statuses["good@x"])
}

func TestRunSkipsWithoutCompleter(t *testing.T) {
	db := openTestDB(t)
	seedPending(t, db, "e1@x", "Thank you for applying")

	r := Runner{DB: db, Logger: store.NewIngestionLogger(db, 40), Cfg: testConfig()}
	stats := r.Run(context.Background())
	assert.Zero(t, stats.Selected)

	emails, err := store.ListEmails(context.Background(), db, store.ListEmailsOpts{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, store.ParseStatusPending, emails[0].ParseStatus)
}

func TestCost(t *testing.T) {
	got := Cost(Usage{PromptTokens: 1000, CompletionTokens: 500}, 0.00015, 0.0006)
	assert.InDelta(t, 0.00015+0.0003, got, 1e-12)

	assert.Zero(t, Cost(Usage{}, 0.00015, 0.0006))
}
