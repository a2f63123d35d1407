package gmail

import (
	"google.golang.org/api/gmail/v1"

	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

// Convert maps an API message in full format to a RawMessage. Headers come
// from the top level payload; the part tree is flattened into its leaves in
// document order, and a single-part payload becomes one part. Attachments are
// left out. Bodies keep the API's base64url encoding.
func Convert(msg *gmail.Message) types.RawMessage {
	raw := types.RawMessage{ID: msg.Id}
	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		raw.Headers = append(raw.Headers, types.Header{Name: h.Name, Value: h.Value})
	}

	raw.Parts = flatten(msg.Payload, nil)
	return raw
}

func flatten(part *gmail.MessagePart, acc []types.Part) []types.Part {
	if part == nil {
		return acc
	}

	if len(part.Parts) > 0 {
		for _, child := range part.Parts {
			acc = flatten(child, acc)
		}
		return acc
	}

	if part.Filename != "" || part.Body == nil || part.Body.Data == "" {
		return acc
	}

	return append(acc, types.Part{
		MimeType: part.MimeType,
		Encoding: types.EncodingBase64URL,
		Data:     []byte(part.Body.Data),
	})
}
