// Package mbox reads newsletters from a local mbox file, for offline runs
// and fixtures.
package mbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/mail/mime"
	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
)

type Source struct {
	path string
	log  *zap.SugaredLogger
}

func New(path string, log *zap.SugaredLogger) (*Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Source{path: path, log: log.With("component", "mail.mbox", "path", path)}, nil
}

type entry struct {
	index int
	data  []byte
}

// Fetch returns the last limit messages of the file, newest (last written)
// first. Messages without a Message-Id are named after their position.
func (s *Source) Fetch(ctx context.Context, limit int) ([]types.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	window := make([]entry, 0, limit)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", idx, err)
		}

		data, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", idx, err)
		}

		if len(window) == limit {
			window = window[1:]
		}
		window = append(window, entry{index: idx, data: data})
	}

	s.log.Infow("Messages", "len", len(window))

	raws := make([]types.RawMessage, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		e := window[i]
		raw, err := mime.Parse("", bytes.NewReader(e.data))
		if err != nil {
			s.log.Errorw("Error parsing message", "error", err, "index", e.index)
			continue
		}
		if raw.ID == "" {
			raw.ID = "mbox-" + strconv.Itoa(e.index)
		}
		raws = append(raws, raw)
	}

	return raws, nil
}
