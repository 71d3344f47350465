// engine/internal/enrich/enrich.go
package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/store"
)

const systemPrompt = `You extract structured data from job-application emails.
Reply with a single JSON object: {"company": string, "role": string, "status": string, "next_action": string}.
Use empty strings for unknown fields. No prose.`

const (
	maxPromptBody = 4000
	maxLoggedJSON = 2000
)

// Stats summarizes one enrichment batch.
type Stats struct {
	Selected int
	Parsed   int
	Failed   int
}

// Runner batches pending stored messages through the completion capability.
// Decoupled from the sync cursor entirely: a failing row is marked error
// and the batch continues.
type Runner struct {
	DB        *sql.DB
	Logger    *store.IngestionLogger
	Completer Completer
	Limiter   *rate.Limiter
	Cfg       config.Config
}

// Run processes up to cfg.OpenAI.BatchSize pending rows. A nil Completer
// (no API credential configured) skips the whole step with a logged reason.
func (r *Runner) Run(ctx context.Context) Stats {
	var stats Stats

	if r.Completer == nil {
		r.Logger.Log(store.LogEntry{
			Phase: store.PhaseParse, Status: "skip",
			Detail: "no openai api key configured",
		})
		return stats
	}

	pending, err := store.PendingEmails(ctx, r.DB, r.Cfg.OpenAI.BatchSize)
	if err != nil {
		r.Logger.Log(store.LogEntry{
			Phase: store.PhaseParse, Status: "error",
			Detail: fmt.Sprintf("select pending: %v", err),
		})
		return stats
	}
	stats.Selected = len(pending)
	if len(pending) == 0 {
		return stats
	}

	timeout := time.Duration(r.Cfg.OpenAI.TimeoutSeconds) * time.Second

	for _, email := range pending {
		if err := r.enrichOne(ctx, email, timeout); err != nil {
			stats.Failed++
			if merr := store.MarkParseError(ctx, r.DB, email.ID); merr != nil {
				r.Logger.Log(store.LogEntry{
					Phase: store.PhaseParse, Status: "error", UID: email.UID,
					MessageID: email.MessageID,
					Detail:    fmt.Sprintf("mark error: %v", merr),
				})
				continue
			}
			r.Logger.Log(store.LogEntry{
				Phase: store.PhaseParse, Status: "error", UID: email.UID,
				MessageID: email.MessageID, Subject: email.Subject,
				Detail: err.Error(),
			})
			continue
		}
		stats.Parsed++
	}

	return stats
}

func (r *Runner) enrichOne(ctx context.Context, email store.Email, timeout time.Duration) error {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(email)},
	}

	comp, err := r.Completer.Complete(callCtx, r.Cfg.OpenAI.Model, messages, 0, 300)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	parsedJSON := normalizeParsedJSON(comp.Content)
	cost := Cost(comp.Usage, r.Cfg.OpenAI.PromptPricePer1K, r.Cfg.OpenAI.CompletionPricePer1K)

	if err := store.MarkParsed(ctx, r.DB, email.ID, store.EnrichmentResult{
		ParsedJSON:       parsedJSON,
		Model:            r.Cfg.OpenAI.Model,
		PromptTokens:     comp.Usage.PromptTokens,
		CompletionTokens: comp.Usage.CompletionTokens,
		TotalTokens:      comp.Usage.TotalTokens,
		CostUSD:          cost,
	}); err != nil {
		return err
	}

	reqJSON, _ := json.Marshal(messages)
	if err := store.InsertOpenAICall(ctx, r.DB, store.OpenAICall{
		EmailID:          email.ID,
		Model:            r.Cfg.OpenAI.Model,
		PromptTokens:     comp.Usage.PromptTokens,
		CompletionTokens: comp.Usage.CompletionTokens,
		TotalTokens:      comp.Usage.TotalTokens,
		CostUSD:          cost,
		RequestJSON:      clip(string(reqJSON), maxLoggedJSON),
		ResponseJSON:     clip(comp.Content, maxLoggedJSON),
	}); err != nil {
		return err
	}

	r.Logger.Log(store.LogEntry{
		Phase: store.PhaseParse, Status: "parsed", UID: email.UID,
		MessageID: email.MessageID, Subject: email.Subject, Class: email.Class,
		Detail: fmt.Sprintf("tokens=%d cost_usd=%.6f", comp.Usage.TotalTokens, cost),
	})
	return nil
}

func buildPrompt(email store.Email) string {
	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(email.Subject)
	b.WriteString("\nFrom: ")
	b.WriteString(email.FromEmail)
	b.WriteString("\nClass: ")
	b.WriteString(email.Class)
	b.WriteString("\n\n")
	b.WriteString(clip(email.Body, maxPromptBody))
	return b.String()
}

// normalizeParsedJSON keeps the row usable when the model replies with
// something that isn't valid JSON: the raw text is wrapped in a fallback
// object instead of failing the row.
func normalizeParsedJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	// Models love fencing JSON in markdown.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	fallback, _ := json.Marshal(map[string]string{"raw": content})
	return string(fallback)
}

// Cost converts token usage to USD using per-1K prices.
func Cost(u Usage, promptPer1K, completionPer1K float64) float64 {
	return float64(u.PromptTokens)/1000*promptPer1K +
		float64(u.CompletionTokens)/1000*completionPer1K
}

func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
