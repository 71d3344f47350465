package config

import (
	"errors"
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

var validClasses = map[string]bool{
	"applied":   true,
	"interview": true,
	"offer":     true,
	"rejection": true,
	"job_alert": true,
}

// NormalizeAndValidate fills defaults and checks structural sanity for a
// config about to be saved. Credentials are intentionally not required
// here; they may live only in the keyring or environment and are checked
// by RequireIngest at run time.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	applyDefaults(&cfg)
	var vr Validation

	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		vr.addErr("app.port must be 1..65535")
	}
	if cfg.Polling.IngestSeconds <= 0 {
		vr.addErr("polling.ingest_seconds must be > 0")
	} else if cfg.Polling.IngestSeconds < 60 {
		vr.addWarn("polling.ingest_seconds below 60 may hit provider rate limits")
	}
	if cfg.Email.BatchLimit <= 0 {
		vr.addErr("email.batch_limit must be > 0")
	}
	if cfg.Email.MaxInitialSync <= 0 {
		vr.addErr("email.max_initial_sync must be > 0")
	} else if cfg.Email.MaxInitialSync > 1000 {
		vr.addWarn("email.max_initial_sync above 1000 makes the first sync slow")
	}
	if cfg.Backfill.BatchSize <= 0 {
		vr.addErr("backfill.batch_size must be > 0")
	}
	if cfg.OpenAI.BatchSize <= 0 {
		vr.addErr("openai.batch_size must be > 0")
	}

	for i, r := range cfg.Scoring.ExtraRules {
		if !validClasses[r.Class] {
			vr.addErr("scoring.extra_rules[%d].class %q is not a lifecycle class", i, r.Class)
		}
		if len(r.Any) == 0 {
			vr.addErr("scoring.extra_rules[%d].any must have at least 1 term", i)
		}
		for j, term := range r.Any {
			if strings.TrimSpace(term) == "" {
				vr.addErr("scoring.extra_rules[%d].any[%d] cannot be empty", i, j)
			}
		}
	}

	return cfg, vr
}

// Validate is the error-shaped wrapper used by SaveAtomic.
func Validate(cfg Config) error {
	_, vr := NormalizeAndValidate(cfg)
	if !vr.OK() {
		return errors.New("config validation failed:\n- " + strings.Join(vr.Errors, "\n- "))
	}
	return nil
}

// RequireIngest checks the fields an ingestion cycle cannot run without.
// A failure here aborts the cycle before any connection is attempted.
func RequireIngest(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Email.IMAPHost) == "" {
		missing = append(missing, "email.imap_host")
	}
	if strings.TrimSpace(cfg.Email.Username) == "" {
		missing = append(missing, "email.username")
	}
	if strings.TrimSpace(cfg.Email.AppPassword) == "" {
		missing = append(missing, "email.app_password (env IMAP_PASSWORD or keyring)")
	}
	if strings.TrimSpace(cfg.Email.Mailbox) == "" {
		missing = append(missing, "email.mailbox")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
