// engine/internal/mailparse/parse.go
package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is the structured form of one RFC822 message, the unit the
// classifier and the store operate on.
type Message struct {
	MessageID   string
	Subject     string
	From        string
	To          string
	Date        time.Time
	Text        string
	HTML        string
	HeaderLines string
}

// Body returns the best text for classification: the plain part when
// present, otherwise the HTML part stripped to text.
func (m Message) Body() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	return HTMLToText(m.HTML)
}

// Parse converts raw RFC822 bytes into a Message. It prefers the go-message
// MIME reader and falls back to net/mail for messages the strict reader
// chokes on; only messages unreadable by both fail.
func Parse(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, errors.New("empty message")
	}

	msg := Message{HeaderLines: headerBlock(raw)}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return parseFallback(raw, msg)
	}
	defer mr.Close()

	h := mr.Header
	msg.MessageID, _ = h.MessageID()
	msg.Subject, _ = h.Subject()
	if d, err := h.Date(); err == nil {
		msg.Date = d
	}
	msg.From = firstAddr(h, "From")
	msg.To = firstAddr(h, "To")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		b, err := io.ReadAll(io.LimitReader(part.Body, 6<<20))
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ct, "text/plain"):
			if len(b) > len(msg.Text) {
				msg.Text = string(b)
			}
		case strings.HasPrefix(ct, "text/html"):
			if len(b) > len(msg.HTML) {
				msg.HTML = string(b)
			}
		}
	}

	return msg, nil
}

// parseFallback is the net/mail safety net for messages go-message rejects.
func parseFallback(raw []byte, msg Message) (Message, error) {
	m, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}

	h := m.Header
	msg.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	if msg.MessageID == "" {
		msg.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-ID")), "<>")
	}
	msg.Subject = DecodeRFC2047(h.Get("Subject"))
	msg.From = h.Get("From")
	msg.To = h.Get("To")
	if ds := h.Get("Date"); ds != "" {
		if t, err := netmail.ParseDate(ds); err == nil {
			msg.Date = t
		}
	}

	body, _ := io.ReadAll(io.LimitReader(m.Body, 6<<20))
	if strings.Contains(strings.ToLower(h.Get("Content-Type")), "text/html") {
		msg.HTML = string(body)
	} else {
		msg.Text = string(body)
	}
	return msg, nil
}

func firstAddr(h mail.Header, field string) string {
	addrs, err := h.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return h.Get(field)
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Address != "" {
			parts = append(parts, a.Address)
		} else if a.Name != "" {
			parts = append(parts, a.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// DecodeRFC2047 decodes encoded-word headers, returning the input untouched
// when decoding fails.
func DecodeRFC2047(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func headerBlock(raw []byte) string {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[:i])
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[:i])
	}
	return ""
}
