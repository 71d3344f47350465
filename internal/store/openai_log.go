package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OpenAICall is one append-only enrichment call record. Request/response
// JSON are truncated by the caller before insert.
type OpenAICall struct {
	EmailID          int64
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	RequestJSON      string
	ResponseJSON     string
}

func InsertOpenAICall(ctx context.Context, db *sql.DB, c OpenAICall) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
INSERT INTO openai_call_log
  (email_id, model, prompt_tokens, completion_tokens, total_tokens, cost_usd, request_json, response_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?);`,
		c.EmailID, c.Model, c.PromptTokens, c.CompletionTokens, c.TotalTokens,
		c.CostUSD, c.RequestJSON, c.ResponseJSON, now,
	)
	if err != nil {
		return fmt.Errorf("insert openai call log email=%d: %w", c.EmailID, err)
	}
	return nil
}
