package extract

import "fmt"

// MissingHeaderError is returned when a message lacks a header the digest needs.
// The message is dropped; the rest of the batch is unaffected.
type MissingHeaderError struct {
	Field string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing %s header", e.Field)
}

// DecodeError describes a body part that could not be turned into text.
// Only that part is skipped.
type DecodeError struct {
	Index    int
	MimeType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding part %d (%s): %s", e.Index, e.MimeType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
