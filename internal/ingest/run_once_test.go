package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrail-engine/internal/classify"
	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/imapx"
	"jobtrail-engine/internal/store"
)

type fakeMailbox struct {
	highest uint32
	msgs    []imapx.FullMessage
	closed  bool
}

func (f *fakeMailbox) Select(string) (uint32, error) { return f.highest, nil }

func (f *fakeMailbox) FetchFull(_ context.Context, from, to uint32) ([]imapx.FullMessage, error) {
	var out []imapx.FullMessage
	for _, m := range f.msgs {
		if m.UID >= from && (to == 0 || m.UID <= to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMailbox) FetchHeaders(_ context.Context, from, to uint32) ([]imapx.HeaderInfo, error) {
	var out []imapx.HeaderInfo
	for _, m := range f.msgs {
		if m.UID >= from && (to == 0 || m.UID <= to) {
			out = append(out, imapx.HeaderInfo{UID: m.UID, Subject: m.Subject, From: m.From, Date: m.Date})
		}
	}
	return out, nil
}

func (f *fakeMailbox) LogoutAndClose() { f.closed = true }

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
	cfg.Email.IMAPHost = "imap.example.com"
	cfg.Email.Username = "user@example.com"
	cfg.Email.AppPassword = "app-password"
	cfg.Email.Mailbox = "INBOX"
	cfg.Email.BatchLimit = 50
	cfg.Email.MaxInitialSync = 200
	cfg.Email.DebugCap = 40
	cfg.Backfill.BatchSize = 100
	cfg.Backfill.ModelVersion = "header-rules-v1"
	cfg.OpenAI.BatchSize = 10
	cfg.OpenAI.TimeoutSeconds = 1
	return cfg
}

func rawMsg(msgID, from, subject, body string) []byte {
	return []byte("From: " + from + "\r\n" +
		"To: user@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Message-Id: <" + msgID + ">\r\n" +
		"Date: Fri, 22 Aug 2025 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

func newTestRunner(db *sql.DB, mb *fakeMailbox) *Runner {
	return &Runner{
		DB:         db,
		Cfg:        testConfig(),
		Dial:       func(context.Context, config.Config, imapx.DebugFunc) (Mailbox, error) { return mb, nil },
		Classifier: classify.New(nil),
	}
}

func TestRunOnceStoresRelevantAndAdvancesCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mb := &fakeMailbox{
		highest: 105,
		msgs: []imapx.FullMessage{
			{UID: 101, Raw: rawMsg("a1@x", "jobs-noreply@linkedin.com", "New jobs for you", "10 recommended jobs this week.")},
			{UID: 102, Raw: rawMsg("a2@x", "friend@example.com", "Lunch on Friday?", "See you at noon.")},
			{UID: 103, Raw: rawMsg("a3@x", "careers@acme.com", "Thank you for applying to Acme", "Your application for Software Engineer was received.")},
			{UID: 104, Raw: rawMsg("a4@x", "careers@acme.com", "Update on your application", "Unfortunately we have decided to pursue other candidates.")},
			{UID: 105, Raw: rawMsg("a5@x", "recruiter@acme.com", "Interview invitation", "Please confirm your availability for a zoom interview for the Software Engineer position.")},
		},
	}
	r := newTestRunner(db, mb)

	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 3, stats.Stored)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Errors)
	assert.NotEmpty(t, stats.RunID)

	st, err := store.GetSyncState(ctx, db, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(105), st.LastUID)

	emails, err := store.ListEmails(ctx, db, store.ListEmailsOpts{})
	require.NoError(t, err)
	require.Len(t, emails, 3)
	byID := map[string]store.Email{}
	for _, e := range emails {
		byID[e.MessageID] = e
	}
	assert.Equal(t, "applied", byID["a3@x"].Class)
	assert.Equal(t, "rejection", byID["a4@x"].Class)
	assert.Equal(t, "interview", byID["a5@x"].Class)

	fetchLog, err := store.TailLog(ctx, db, store.PhaseFetch, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(fetchLog), 5)

	runLog, err := store.TailLog(ctx, db, store.PhaseRun, 100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(runLog), 2)
	assert.Equal(t, "end", runLog[0].Status)

	assert.True(t, mb.closed)
}

func TestRunOnceSecondCycleIsIncremental(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mb := &fakeMailbox{
		highest: 103,
		msgs: []imapx.FullMessage{
			{UID: 103, Raw: rawMsg("b1@x", "careers@acme.com", "Thank you for applying", "your application was received")},
		},
	}
	r := newTestRunner(db, mb)

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	// Nothing new: cursor is at the top, the cycle logs up_to_date.
	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Fetched)

	n, err := store.CountEmails(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnceConnectFailureAborts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := &Runner{
		DB:  db,
		Cfg: testConfig(),
		Dial: func(context.Context, config.Config, imapx.DebugFunc) (Mailbox, error) {
			return nil, errors.New("connection refused")
		},
		Classifier: classify.New(nil),
	}

	_, err := r.RunOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap connect")

	entries, err := store.TailLog(ctx, db, store.PhaseIMAP, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "error", entries[0].Status)
}

func TestRunOnceMissingConfigAborts(t *testing.T) {
	db := openTestDB(t)

	r := newTestRunner(db, &fakeMailbox{})
	r.Cfg.Email.AppPassword = ""

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_password")
}

func TestRunOnceDeadLettersPoisonMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mb := &fakeMailbox{
		highest: 103,
		msgs: []imapx.FullMessage{
			{UID: 101, Raw: rawMsg("c1@x", "careers@acme.com", "Thank you for applying", "your application was received")},
			{UID: 102, Subject: "broken", Raw: nil},
			{UID: 103, Raw: rawMsg("c3@x", "careers@acme.com", "Offer letter", "We are pleased to offer you the position. Start date to follow.")},
		},
	}
	r := newTestRunner(db, mb)

	// Cycle 1: UID 101 stores and advances, 102 fails (attempt 1) and blocks
	// the cursor, 103 still stores.
	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 1, stats.Errors)

	st, err := store.GetSyncState(ctx, db, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(101), st.LastUID)
	assert.Equal(t, uint32(102), st.FailedUID)
	assert.Equal(t, 1, st.FailedAttempts)

	// Cycle 2: attempt 2, still blocked.
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	st, err = store.GetSyncState(ctx, db, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(101), st.LastUID)
	assert.Equal(t, 2, st.FailedAttempts)

	// Cycle 3: attempt 3 dead-letters UID 102; the cursor moves past it.
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	st, err = store.GetSyncState(ctx, db, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(103), st.LastUID)
	assert.Zero(t, st.FailedAttempts)

	entries, err := store.TailLog(ctx, db, store.PhaseParse, 100)
	require.NoError(t, err)
	var deadLettered bool
	for _, e := range entries {
		if e.Status == "dead_letter" && e.UID == 102 {
			deadLettered = true
		}
	}
	assert.True(t, deadLettered)

	// The poison message never produced a row; its neighbors did, once.
	n, err := store.CountEmails(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunOnceFallbackMessageID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	raw := []byte("From: careers@acme.com\r\n" +
		"Subject: Thank you for applying\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"your application was received\r\n")

	mb := &fakeMailbox{
		highest: 50,
		msgs:    []imapx.FullMessage{{UID: 50, Raw: raw}},
	}
	r := newTestRunner(db, mb)

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	emails, err := store.ListEmails(ctx, db, store.ListEmailsOpts{})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, fmt.Sprintf("uid:%d@INBOX", 50), emails[0].MessageID)
}
