// engine/internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is an extra keyword rule layered on top of the built-in classifier
// table. Class must be one of the lifecycle classes.
type Rule struct {
	Class  string   `yaml:"class"`
	Weight int      `yaml:"weight"`
	Any    []string `yaml:"any"`
}

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Polling struct {
		IngestSeconds int `yaml:"ingest_seconds"`
	} `yaml:"polling"`

	Email struct {
		IMAPHost string `yaml:"imap_host"`
		IMAPPort int    `yaml:"imap_port"`
		Secure   bool   `yaml:"secure"`
		Username string `yaml:"username"`
		// AppPassword comes from the environment or the OS keyring, never
		// from the yaml file and never over the HTTP API.
		AppPassword    string `yaml:"-" json:"-"`
		Mailbox        string `yaml:"mailbox"`
		BatchLimit     int    `yaml:"batch_limit"`
		MaxInitialSync int    `yaml:"max_initial_sync"`
		DebugCap       int    `yaml:"debug_cap"`
		IncludeAlerts  bool   `yaml:"include_alerts"`
	} `yaml:"email"`

	Backfill struct {
		BatchSize    int    `yaml:"batch_size"`
		ModelVersion string `yaml:"model_version"`
	} `yaml:"backfill"`

	OpenAI struct {
		APIKey               string  `yaml:"-" json:"-"`
		Model                string  `yaml:"model"`
		BatchSize            int     `yaml:"batch_size"`
		PromptPricePer1K     float64 `yaml:"prompt_price_per_1k"`
		CompletionPricePer1K float64 `yaml:"completion_price_per_1k"`
		TimeoutSeconds       int     `yaml:"timeout_seconds"`
	} `yaml:"openai"`

	Scoring struct {
		ExtraRules []Rule `yaml:"extra_rules"`
	} `yaml:"scoring"`
}

// Load reads the yaml file, applies defaults, then overlays environment
// variables. Precedence: env > yaml > defaults. The keyring password
// fallback is resolved by the caller (cmd/engine) so this package stays
// free of keychain access.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Port == 0 {
		cfg.App.Port = 38472
	}
	if cfg.Polling.IngestSeconds == 0 {
		cfg.Polling.IngestSeconds = 300
	}
	if cfg.Email.IMAPPort == 0 {
		cfg.Email.IMAPPort = 993
		cfg.Email.Secure = true
	}
	if cfg.Email.Mailbox == "" {
		cfg.Email.Mailbox = "INBOX"
	}
	if cfg.Email.BatchLimit == 0 {
		cfg.Email.BatchLimit = 50
	}
	if cfg.Email.MaxInitialSync == 0 {
		cfg.Email.MaxInitialSync = 200
	}
	if cfg.Email.DebugCap == 0 {
		cfg.Email.DebugCap = 40
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = 100
	}
	if cfg.Backfill.ModelVersion == "" {
		cfg.Backfill.ModelVersion = "header-rules-v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.BatchSize == 0 {
		cfg.OpenAI.BatchSize = 10
	}
	if cfg.OpenAI.PromptPricePer1K == 0 {
		cfg.OpenAI.PromptPricePer1K = 0.00015
	}
	if cfg.OpenAI.CompletionPricePer1K == 0 {
		cfg.OpenAI.CompletionPricePer1K = 0.0006
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 12
	}
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setStr(&cfg.Email.IMAPHost, "IMAP_HOST")
	setInt(&cfg.Email.IMAPPort, "IMAP_PORT")
	setBool(&cfg.Email.Secure, "IMAP_SECURE")
	setStr(&cfg.Email.Username, "IMAP_USER")
	setStr(&cfg.Email.AppPassword, "IMAP_PASSWORD")
	setStr(&cfg.Email.Mailbox, "IMAP_MAILBOX")
	setInt(&cfg.Email.BatchLimit, "INGEST_BATCH_LIMIT")
	setInt(&cfg.Email.MaxInitialSync, "INGEST_MAX_INITIAL_SYNC")
	setInt(&cfg.Email.DebugCap, "INGEST_DEBUG_CAP")
	setBool(&cfg.Email.IncludeAlerts, "INGEST_INCLUDE_ALERTS")
	setInt(&cfg.Backfill.BatchSize, "BACKFILL_BATCH")
	setStr(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setStr(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setInt(&cfg.OpenAI.BatchSize, "OPENAI_BATCH_SIZE")
}
