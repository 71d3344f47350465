package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainText(t *testing.T) {
	raw := []byte("From: careers@acme.com\r\n" +
		"To: user@example.com\r\n" +
		"Subject: Thank you for applying\r\n" +
		"Message-Id: <m1@acme.com>\r\n" +
		"Date: Fri, 22 Aug 2025 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Your application was received.\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "m1@acme.com", msg.MessageID)
	assert.Equal(t, "Thank you for applying", msg.Subject)
	assert.Equal(t, "careers@acme.com", msg.From)
	assert.Equal(t, "user@example.com", msg.To)
	assert.Equal(t, 2025, msg.Date.Year())
	assert.Contains(t, msg.Text, "Your application was received.")
	assert.Contains(t, msg.HeaderLines, "Subject: Thank you for applying")
}

func TestParseMultipartAlternative(t *testing.T) {
	raw := []byte("From: recruiter@acme.com\r\n" +
		"To: user@example.com\r\n" +
		"Subject: Interview invitation\r\n" +
		"Message-Id: <m2@acme.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Please confirm your availability.\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Please <b>confirm</b> your availability.</p>\r\n" +
		"--b1--\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Contains(t, msg.Text, "Please confirm your availability.")
	assert.Contains(t, msg.HTML, "<b>confirm</b>")
	assert.Contains(t, msg.Body(), "Please confirm your availability.")
}

func TestParseEmptyFails(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
}

func TestBodyFallsBackToHTML(t *testing.T) {
	m := Message{HTML: "<html><body><p>We are pleased to offer you the role.</p></body></html>"}
	assert.Equal(t, "We are pleased to offer you the role.", m.Body())
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p { color: red; }</style></head>` +
		`<body><p>Hello   world</p><script>alert(1)</script><div>again</div></body></html>`
	assert.Equal(t, "Hello world again", HTMLToText(html))
	assert.Empty(t, HTMLToText("   "))
}

func TestDecodeRFC2047(t *testing.T) {
	assert.Equal(t, "Vielen Dank für Ihre Bewerbung",
		DecodeRFC2047("=?utf-8?q?Vielen_Dank_f=C3=BCr_Ihre_Bewerbung?="))
	assert.Equal(t, "plain subject", DecodeRFC2047("plain subject"))
}
