package types

import (
	"context"
	"mime"
	"strings"
)

const (
	PlainText = "text/plain"
	HTMLText  = "text/html"
)

const (
	// EncodingIdentity marks a payload that is already transfer-decoded.
	EncodingIdentity Encoding = iota
	// EncodingBase64URL marks a payload in the URL-safe base64 alphabet, as the Gmail API returns it.
	EncodingBase64URL
)

type Encoding int64

func (e Encoding) String() string {
	switch e {
	case EncodingIdentity:
		return "identity"
	case EncodingBase64URL:
		return "base64url"
	}

	return "unknown"
}

type Header struct {
	Name  string
	Value string
}

// Part is a leaf body segment of a message.
type Part struct {
	MimeType string
	Encoding Encoding
	Data     []byte
}

// MediaType returns the lowercased content type without parameters.
func (p Part) MediaType() string {
	mediaType, _, err := mime.ParseMediaType(p.MimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(p.MimeType))
	}

	return mediaType
}

// RawMessage is a mailbox message as a source hands it over. Sources never
// share a RawMessage with anyone but the extractor.
type RawMessage struct {
	ID      string
	Headers []Header
	Parts   []Part
}

// Source pulls a fixed batch of the most recent messages from a mailbox.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]RawMessage, error)
}

// Sender delivers a rendered HTML document by email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}
