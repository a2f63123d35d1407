// Package summarize defines the contract every summarization backend fulfils
// and aggregates the summaries of several backends per message.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorMarker takes the place of a summary whose backend failed.
const ErrorMarker = "An error occurred during summarization."

type Limits struct {
	MaxOutputTokens int
}

type Backend interface {
	Summarize(ctx context.Context, text string, limits Limits) (string, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, text string, limits Limits) (string, error)

func (f BackendFunc) Summarize(ctx context.Context, text string, limits Limits) (string, error) {
	return f(ctx, text, limits)
}

// UnavailableError reports a network or service failure of a backend.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// QuotaError reports a backend that refused the call because a usage quota ran out.
type QuotaError struct {
	Backend string
	Err     error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %s", e.Backend, e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// Classify makes sure err is one of the backend error kinds. Errors that are
// neither are reported as unavailability.
func Classify(backend string, err error) error {
	if err == nil {
		return nil
	}

	var quota *QuotaError
	var unavailable *UnavailableError
	if errors.As(err, &quota) || errors.As(err, &unavailable) {
		return err
	}

	return &UnavailableError{Backend: backend, Err: err}
}

type NamedBackend struct {
	Name    string
	Backend Backend
}

// Registry is an ordered set of named backends. The registration order is the
// order summaries are presented in.
type Registry struct {
	entries []NamedBackend
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, backend Backend) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("backend name cannot be empty")
	}
	if backend == nil {
		return fmt.Errorf("backend %q is nil", name)
	}

	for _, entry := range r.entries {
		if entry.Name == name {
			return fmt.Errorf("backend %q already registered", name)
		}
	}

	r.entries = append(r.entries, NamedBackend{Name: name, Backend: backend})
	return nil
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	names := make([]string, len(r.entries))
	for i, entry := range r.entries {
		names[i] = entry.Name
	}

	return names
}

func (r *Registry) Backends() []NamedBackend {
	if r == nil {
		return nil
	}

	return append([]NamedBackend(nil), r.entries...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Result holds every backend's outcome for one message. Summaries always has
// an entry per backend; failed ones carry ErrorMarker and the reason in Errors.
type Result struct {
	Sender    string            `json:"sender"`
	Subject   string            `json:"subject"`
	Summaries map[string]string `json:"summaries"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Failed reports whether the named backend failed for this message.
func (r Result) Failed(backend string) bool {
	_, failed := r.Errors[backend]
	return failed
}
