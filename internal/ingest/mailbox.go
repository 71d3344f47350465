// engine/internal/ingest/mailbox.go
package ingest

import (
	"context"
	"crypto/tls"
	"fmt"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/imapx"
)

// Mailbox is the slice of the IMAP session the orchestrator needs. The
// production implementation is imapx.Client; tests substitute fakes.
type Mailbox interface {
	Select(mailbox string) (highestUID uint32, err error)
	FetchFull(ctx context.Context, from, to uint32) ([]imapx.FullMessage, error)
	FetchHeaders(ctx context.Context, from, to uint32) ([]imapx.HeaderInfo, error)
	LogoutAndClose()
}

// DialFunc opens an authenticated session for the configured account.
type DialFunc func(ctx context.Context, cfg config.Config, debug imapx.DebugFunc) (Mailbox, error)

// DialIMAP is the production DialFunc.
func DialIMAP(ctx context.Context, cfg config.Config, debug imapx.DebugFunc) (Mailbox, error) {
	addr := cfg.Email.IMAPHost
	if cfg.Email.IMAPPort != 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Email.IMAPHost, cfg.Email.IMAPPort)
	}
	var tlsCfg *tls.Config
	if cfg.Email.Secure {
		tlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Email.IMAPHost,
		}
	}
	return imapx.Dial(ctx, addr, cfg.Email.Username, cfg.Email.AppPassword, tlsCfg, debug)
}
