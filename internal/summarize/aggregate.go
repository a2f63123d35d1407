package summarize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/extract"
)

const (
	DefaultTimeout     = 2 * time.Minute
	DefaultConcurrency = 4
)

type Options struct {
	Limits Limits
	// Timeout bounds every single backend call.
	Timeout time.Duration
	// Concurrency is how many messages are summarized at the same time.
	Concurrency int
	Logger      *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

type outcome struct {
	text string
	err  error
}

// Aggregate runs every backend over every message. The i-th result belongs to
// the i-th message whatever order the calls finish in. A backend failing on a
// message only affects that message's slot for that backend.
func Aggregate(ctx context.Context, msgs []extract.Message, backends *Registry, opts Options) []Result {
	opts = opts.withDefaults()
	results := make([]Result, len(msgs))
	if len(msgs) == 0 {
		return results
	}

	workers := opts.Concurrency
	if workers > len(msgs) {
		workers = len(msgs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = summarizeMessage(ctx, msgs[idx], backends, opts)
			}
		}()
	}

	for idx := range msgs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results
}

func summarizeMessage(ctx context.Context, msg extract.Message, backends *Registry, opts Options) Result {
	entries := backends.Backends()
	outcomes := make([]outcome, len(entries))

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for i, entry := range entries {
		go func(i int, entry NamedBackend) {
			defer wg.Done()
			outcomes[i] = invoke(ctx, entry, msg.Body, opts)
		}(i, entry)
	}
	wg.Wait()

	result := Result{
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Summaries: make(map[string]string, len(entries)),
	}
	for i, entry := range entries {
		o := outcomes[i]
		if o.err != nil {
			opts.Logger.Errorw("Error summarizing message",
				"backend", entry.Name,
				"subject", msg.Subject,
				"error", o.err,
			)
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Summaries[entry.Name] = ErrorMarker
			result.Errors[entry.Name] = o.err.Error()
			continue
		}
		result.Summaries[entry.Name] = o.text
	}

	return result
}

// invoke calls one backend and never lets it outlive opts.Timeout, even when
// the backend ignores its context.
func invoke(ctx context.Context, entry NamedBackend, text string, opts Options) outcome {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	startedAt := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("backend panicked: %v", r)}
			}
		}()
		summary, err := entry.Backend.Summarize(ctx, text, opts.Limits)
		done <- outcome{text: summary, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o = outcome{err: ctx.Err()}
	}

	o.err = Classify(entry.Name, o.err)
	opts.Logger.Debugw("Backend call finished",
		"backend", entry.Name,
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"failed", o.err != nil,
	)

	return o
}
