// Package mime converts RFC 5322 messages to and from the types the digest
// pipeline works with.
package mime

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

// Parse reads a whole message and flattens its body into leaf parts in
// document order. Part payloads come out transfer-decoded and converted to
// UTF-8, so every part carries types.EncodingIdentity. Attachments are left out.
func Parse(id string, r io.Reader) (types.RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return types.RawMessage{}, fmt.Errorf("reading message %s: %w", id, err)
	}
	defer mr.Close()

	raw := types.RawMessage{ID: id, Headers: headers(&mr.Header.Header)}
	if raw.ID == "" {
		raw.ID, _ = mr.Header.MessageID()
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return types.RawMessage{}, fmt.Errorf("reading part %d of message %s: %w", len(raw.Parts), raw.ID, err)
		}
		if p == nil {
			continue
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil || contentType == "" {
			contentType = types.PlainText
		}

		data, err := io.ReadAll(p.Body)
		if err != nil {
			return types.RawMessage{}, fmt.Errorf("reading part %d of message %s: %w", len(raw.Parts), raw.ID, err)
		}

		raw.Parts = append(raw.Parts, types.Part{
			MimeType: contentType,
			Encoding: types.EncodingIdentity,
			Data:     data,
		})
	}

	return raw, nil
}

func headers(h *message.Header) []types.Header {
	var res []types.Header

	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		res = append(res, types.Header{Name: fields.Key(), Value: value})
	}

	return res
}

// Outgoing is an HTML message ready to be written with Compose.
type Outgoing struct {
	From    string
	To      string
	Subject string
	HTML    string
	Date    time.Time
}

// Compose writes msg as a single-part text/html message.
func Compose(w io.Writer, msg Outgoing) error {
	to, err := mail.ParseAddressList(msg.To)
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", msg.To, err)
	}

	var h mail.Header
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("To", to)
	if strings.TrimSpace(msg.From) != "" {
		from, err := mail.ParseAddressList(msg.From)
		if err != nil {
			return fmt.Errorf("parsing sender %q: %w", msg.From, err)
		}
		h.SetAddressList("From", from)
	}
	h.SetSubject(msg.Subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(body, msg.HTML); err != nil {
		_ = body.Close()
		return err
	}

	return body.Close()
}
