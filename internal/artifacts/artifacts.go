// Package artifacts keeps a copy of what each run consumed and produced:
// the normalized messages, the summary results and the rendered digest.
package artifacts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
	StageEmail  Stage = "email"
)

func (s Stage) Ext() string {
	if s == StageEmail {
		return ".html"
	}
	return ".json"
}

func (s Stage) ContentType() string {
	if s == StageEmail {
		return "text/html"
	}
	return "application/json"
}

// RunContext identifies one pipeline run. It is created once at startup and
// passed to every store call.
type RunContext struct {
	ID        uuid.UUID
	Timestamp time.Time
	Root      string
}

func NewRunContext(root string, now time.Time) RunContext {
	return RunContext{ID: uuid.New(), Timestamp: now, Root: root}
}

// Store persists one payload per run and stage and reports where it went.
type Store interface {
	Save(ctx context.Context, rc RunContext, stage Stage, payload []byte) (string, error)
}

// ErrNotFound is returned by a Loader when the run has no artifact for the
// stage.
var ErrNotFound = errors.New("artifact not found")

// Loader reads back an artifact saved by an earlier run.
type Loader interface {
	Load(ctx context.Context, runID uuid.UUID, stage Stage) ([]byte, error)
}

type Nop struct{}

func (Nop) Save(context.Context, RunContext, Stage, []byte) (string, error) {
	return "", nil
}
