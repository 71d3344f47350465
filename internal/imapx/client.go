// engine/internal/imapx/client.go
package imapx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// FullMessage carries the envelope plus the full RFC822 bytes for one
// message. Fetched with BODY.PEEK[] so it won't mark as \Seen.
type FullMessage struct {
	UID     uint32
	Subject string
	From    string
	To      string
	Date    time.Time
	Raw     []byte
}

// HeaderInfo is envelope-only data, fetched without the body. Used by the
// backfill crawl.
type HeaderInfo struct {
	UID     uint32
	Subject string
	From    string
	Date    time.Time
	Size    int64
}

// DebugFunc receives protocol-level debug events (dial, login, select,
// fetch counts). The caller decides where they go and how many to keep.
type DebugFunc func(status, detail string)

// Client wraps one stateful IMAP session.
type Client struct {
	c     *imapclient.Client
	debug DebugFunc
}

// Dial connects over TLS and logs in. addr may omit the port; 993 is
// assumed.
func Dial(ctx context.Context, addr, username, password string, tlsCfg *tls.Config, debug DebugFunc) (*Client, error) {
	if addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if username == "" || password == "" {
		return nil, errors.New("imap username/password is required")
	}
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if debug == nil {
		debug = func(string, string) {}
	}

	debug("dial", addr)
	c, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsCfg})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel.
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	debug("login", username)

	return &Client{c: c, debug: debug}, nil
}

// Select opens a mailbox read-only and returns the highest UID currently
// assigned in it (UIDNEXT-1). Zero means the mailbox is empty.
func (c *Client) Select(mailbox string) (uint32, error) {
	data, err := c.c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap select %q: %w", mailbox, err)
	}
	c.debug("select", fmt.Sprintf("%s uidnext=%d messages=%d", mailbox, data.UIDNext, data.NumMessages))
	if data.UIDNext <= 1 {
		return 0, nil
	}
	return uint32(data.UIDNext) - 1, nil
}

// FetchFull fetches envelope + raw bytes for the UID range [from, to],
// ascending by UID. to == 0 means the open-ended range from:*.
func (c *Client) FetchFull(ctx context.Context, from, to uint32) ([]FullMessage, error) {
	uidSet := rangeSet(from, to)

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := c.c.Fetch(uidSet, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	var out []FullMessage
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		var fm FullMessage
		fm.UID = uint32(buf.UID)
		if buf.Envelope != nil {
			fm.Subject = buf.Envelope.Subject
			fm.Date = buf.Envelope.Date
			fm.From = joinAddrs(buf.Envelope.From)
			fm.To = joinAddrs(buf.Envelope.To)
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			fm.Raw = append([]byte(nil), b...)
		}
		out = append(out, fm)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	c.debug("fetch", fmt.Sprintf("full range=%d:%d got=%d", from, to, len(out)))
	return out, nil
}

// FetchHeaders fetches envelope + size only for [from, to], ascending.
func (c *Client) FetchHeaders(ctx context.Context, from, to uint32) ([]HeaderInfo, error) {
	uidSet := rangeSet(from, to)

	fetchCmd := c.c.Fetch(uidSet, &imap.FetchOptions{
		UID:        true,
		Envelope:   true,
		RFC822Size: true,
	})
	defer func() { _ = fetchCmd.Close() }()

	var out []HeaderInfo
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		hi := HeaderInfo{
			UID:  uint32(buf.UID),
			Size: buf.RFC822Size,
		}
		if buf.Envelope != nil {
			hi.Subject = buf.Envelope.Subject
			hi.From = joinAddrs(buf.Envelope.From)
			hi.Date = buf.Envelope.Date
		}
		out = append(out, hi)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	c.debug("fetch", fmt.Sprintf("headers range=%d:%d got=%d", from, to, len(out)))
	return out, nil
}

// LogoutAndClose logs out then closes the connection. Safe on a nil client.
func (c *Client) LogoutAndClose() {
	if c == nil || c.c == nil {
		return
	}
	if err := c.c.Logout().Wait(); err != nil {
		c.debug("logout_error", err.Error())
	} else {
		c.debug("logout", "")
	}
	_ = c.c.Close()
}

func rangeSet(from, to uint32) imap.UIDSet {
	var set imap.UIDSet
	set.AddRange(imap.UID(from), imap.UID(to))
	return set
}

func joinAddrs(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}
