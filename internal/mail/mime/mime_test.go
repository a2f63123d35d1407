package mime

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

const multipartFixture = "From: Cat Weekly <news@cats.example>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?B?Q2F0cyDwn5CI?=\r\n" +
	"Message-Id: <42@cats.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Caf=E9 cats are back.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PHA+Q2F0czwvcD4=\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=notes.txt\r\n" +
	"\r\n" +
	"attached notes\r\n" +
	"--outer--\r\n"

func TestParseMultipart(t *testing.T) {
	raw, err := Parse("", strings.NewReader(multipartFixture))
	require.NoError(t, err)

	assert.Equal(t, "42@cats.example", raw.ID)
	assert.Contains(t, raw.Headers, types.Header{Name: "Subject", Value: "Cats 🐈"})
	assert.Contains(t, raw.Headers, types.Header{Name: "From", Value: "Cat Weekly <news@cats.example>"})

	require.Len(t, raw.Parts, 2)
	assert.Equal(t, types.PlainText, raw.Parts[0].MimeType)
	assert.Equal(t, types.EncodingIdentity, raw.Parts[0].Encoding)
	assert.Equal(t, "Café cats are back.", strings.TrimSpace(string(raw.Parts[0].Data)))
	assert.Equal(t, types.HTMLText, raw.Parts[1].MimeType)
	assert.Equal(t, "<p>Cats</p>", string(raw.Parts[1].Data))
}

func TestParseSinglePart(t *testing.T) {
	msg := "Subject: Hi\r\nFrom: a@x.com\r\n\r\nHello world"

	raw, err := Parse("mbox-1", strings.NewReader(msg))
	require.NoError(t, err)

	assert.Equal(t, "mbox-1", raw.ID)
	require.Len(t, raw.Parts, 1)
	assert.Equal(t, types.PlainText, raw.Parts[0].MimeType)
	assert.Equal(t, "Hello world", string(raw.Parts[0].Data))
}

func TestParseKeepsHeaderOrder(t *testing.T) {
	msg := "Subject: first\r\nSubject: second\r\nFrom: a@x.com\r\n\r\nbody"

	raw, err := Parse("x", strings.NewReader(msg))
	require.NoError(t, err)

	var subjects []string
	for _, h := range raw.Headers {
		if h.Name == "Subject" {
			subjects = append(subjects, h.Value)
		}
	}
	assert.Equal(t, []string{"first", "second"}, subjects)
}

func TestCompose(t *testing.T) {
	var buf bytes.Buffer
	err := Compose(&buf, Outgoing{
		To:      "reader@example.com",
		Subject: "Newsletter Summary: 10/19",
		HTML:    "<h1>Newsletter Summaries</h1>",
		Date:    time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	raw, err := Parse("sent", &buf)
	require.NoError(t, err)

	assert.Contains(t, raw.Headers, types.Header{Name: "Subject", Value: "Newsletter Summary: 10/19"})
	assert.Contains(t, raw.Headers, types.Header{Name: "To", Value: "<reader@example.com>"})
	require.Len(t, raw.Parts, 1)
	assert.Equal(t, types.HTMLText, raw.Parts[0].MimeType)
	assert.Equal(t, "<h1>Newsletter Summaries</h1>", string(raw.Parts[0].Data))
}

func TestComposeRejectsBadRecipient(t *testing.T) {
	var buf bytes.Buffer
	err := Compose(&buf, Outgoing{To: "not an address", Subject: "s", HTML: "x"})
	assert.Error(t, err)
}
