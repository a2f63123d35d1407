// Package extract turns raw mailbox messages into the normalized records the
// summarizers consume.
package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
	"github.com/Philanthropists/newsletter-digest/internal/sanitize"
)

const (
	subjectHeader = "Subject"
	fromHeader    = "From"
)

var errInvalidUTF8 = errors.New("payload is not valid UTF-8")

type Message struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Extractor struct {
	Pipeline sanitize.Pipeline
	Logger   *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) Extractor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return Extractor{Pipeline: sanitize.Default(), Logger: log}
}

// Extract normalizes a message with the default sanitization chain.
func Extract(raw types.RawMessage) (Message, error) {
	return New(nil).Extract(raw)
}

func (e Extractor) Extract(raw types.RawMessage) (Message, error) {
	subject, ok := firstHeader(raw.Headers, subjectHeader)
	if !ok {
		return Message{}, &MissingHeaderError{Field: subjectHeader}
	}

	sender, ok := firstHeader(raw.Headers, fromHeader)
	if !ok {
		return Message{}, &MissingHeaderError{Field: fromHeader}
	}

	body, errs := e.body(raw.Parts)
	for _, err := range errs {
		e.logger().Warnw("Skipping unreadable part",
			"msgId", raw.ID,
			"error", err,
		)
	}

	return Message{
		Sender:  sender,
		Subject: subject,
		Body:    body,
	}, nil
}

// ExtractAll extracts every message in order. Messages that fail are logged
// and left out; dropped is how many were.
func (e Extractor) ExtractAll(raws []types.RawMessage) (msgs []Message, dropped int) {
	msgs = make([]Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := e.Extract(raw)
		if err != nil {
			e.logger().Errorw("Error extracting message",
				"error", err,
				"msgId", raw.ID,
			)
			dropped++
			continue
		}
		msgs = append(msgs, msg)
	}

	return msgs, dropped
}

// body concatenates the plain text parts. Markup parts only contribute when
// there is no plain text at all, since multipart/alternative mail carries the
// same content in both.
func (e Extractor) body(parts []types.Part) (string, []error) {
	var plain, markup strings.Builder
	var errs []error

	for i, part := range parts {
		mediaType := part.MediaType()
		if mediaType != types.PlainText && mediaType != types.HTMLText {
			continue
		}

		text, err := decode(part)
		if err != nil {
			errs = append(errs, &DecodeError{Index: i, MimeType: mediaType, Err: err})
			continue
		}

		if mediaType == types.PlainText {
			plain.WriteString(e.pipeline().Apply(text))
			continue
		}
		markup.WriteString(e.pipeline().Apply(sanitize.HTMLToText(text)))
	}

	// parts are cleaned one by one; joining them can put two whitespace runs side by side
	if plain.Len() > 0 {
		return sanitize.CollapseWhitespace(plain.String()), errs
	}

	return sanitize.CollapseWhitespace(markup.String()), errs
}

func (e Extractor) pipeline() sanitize.Pipeline {
	if e.Pipeline == nil {
		return sanitize.Default()
	}
	return e.Pipeline
}

func (e Extractor) logger() *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger
}

func decode(part types.Part) (string, error) {
	data := part.Data

	switch part.Encoding {
	case types.EncodingIdentity:
	case types.EncodingBase64URL:
		decoded, err := decodeBase64URL(data)
		if err != nil {
			return "", err
		}
		data = decoded
	default:
		return "", fmt.Errorf("unsupported encoding %s", part.Encoding)
	}

	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}

	return string(data), nil
}

// decodeBase64URL accepts both padded and unpadded input; the Gmail API is not
// consistent about padding.
func decodeBase64URL(data []byte) ([]byte, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(string(data)), "=")

	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("base64url: %w", err)
	}

	return decoded, nil
}

func firstHeader(headers []types.Header, name string) (string, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h.Value, true
		}
	}

	return "", false
}
