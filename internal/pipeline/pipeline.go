// Package pipeline runs one digest: fetch, extract, summarize, render and
// deliver.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/artifacts"
	"github.com/Philanthropists/newsletter-digest/internal/extract"
	"github.com/Philanthropists/newsletter-digest/internal/mail/types"
	"github.com/Philanthropists/newsletter-digest/internal/render"
	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const subjectPrefix = "Newsletter Summary: "

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

type Deps struct {
	Source   types.Source
	Limit    int
	Backends *summarize.Registry
	Options  summarize.Options
	Renderer render.Renderer

	// Sender and Recipient are used only when Deliver is set. Otherwise the
	// digest is kept as an artifact.
	Sender    types.Sender
	Recipient string
	Deliver   bool

	Store    artifacts.Store
	Run      artifacts.RunContext
	Notifier Notifier
	Logger   *zap.SugaredLogger
}

type Report struct {
	Fetched        int    `json:"fetched"`
	Dropped        int    `json:"dropped"`
	Summarized     int    `json:"summarized"`
	Delivered      bool   `json:"delivered"`
	DigestLocation string `json:"digestLocation,omitempty"`
	// BackendFailures counts, per backend, the messages that got the error
	// marker instead of a summary.
	BackendFailures map[string]int `json:"backendFailures,omitempty"`
}

func Subject(rc artifacts.RunContext) string {
	return subjectPrefix + rc.Timestamp.Format("01/02")
}

func Run(ctx context.Context, d Deps) (Report, error) {
	var report Report

	if d.Source == nil {
		return report, errors.New("no mail source configured")
	}
	if d.Backends.Len() == 0 {
		return report, errors.New("no summarize backends registered")
	}
	if d.Deliver && (d.Sender == nil || d.Recipient == "") {
		return report, errors.New("delivery needs a sender and a recipient")
	}

	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("runId", d.Run.ID.String())
	store := d.Store
	if store == nil {
		store = artifacts.Nop{}
	}

	raws, err := d.Source.Fetch(ctx, d.Limit)
	if err != nil {
		return report, fmt.Errorf("fetching messages: %w", err)
	}
	report.Fetched = len(raws)
	if len(raws) == 0 {
		log.Info("No messages found.")
		return report, nil
	}

	msgs, failures := extract.New(log).ExtractAll(raws)
	report.Dropped = failures
	if failures > 0 {
		log.Infow("Had failures extracting information from messages",
			"failures", failures,
		)
	}
	if len(msgs) == 0 {
		log.Info("no messages to summarize, exiting ... ")
		d.notify(ctx, log, report)
		return report, nil
	}
	saveJSON(ctx, log, store, d.Run, artifacts.StageInput, msgs)

	opts := d.Options
	if opts.Logger == nil {
		opts.Logger = log
	}
	results := summarize.Aggregate(ctx, msgs, d.Backends, opts)
	report.Summarized = len(results)
	report.BackendFailures = countFailures(results, d.Backends.Names())
	for name, n := range report.BackendFailures {
		log.Warnw("Backend failed for some messages", "backend", name, "failures", n)
	}
	saveJSON(ctx, log, store, d.Run, artifacts.StageOutput, results)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	digest, err := d.Renderer.Render(results, d.Backends.Names())
	if err != nil {
		return report, err
	}

	if d.Deliver {
		log.Infow("Sending email", "to", d.Recipient)
		if err := d.Sender.Send(ctx, d.Recipient, Subject(d.Run), digest); err != nil {
			return report, err
		}
		report.Delivered = true
	} else {
		location, err := store.Save(ctx, d.Run, artifacts.StageEmail, []byte(digest))
		if err != nil {
			log.Errorw("Could not store digest", "error", err)
		} else {
			log.Infow("Skipping email sending, stored digest", "location", location)
			report.DigestLocation = location
		}
	}

	log.Infow("Digest done",
		"fetched", report.Fetched,
		"dropped", report.Dropped,
		"summarized", report.Summarized,
		"delivered", report.Delivered,
	)
	d.notify(ctx, log, report)

	return report, nil
}

func countFailures(results []summarize.Result, backends []string) map[string]int {
	var counts map[string]int
	for _, res := range results {
		for _, name := range backends {
			if !res.Failed(name) {
				continue
			}
			if counts == nil {
				counts = make(map[string]int)
			}
			counts[name]++
		}
	}
	return counts
}

func (d Deps) notify(ctx context.Context, log *zap.SugaredLogger, report Report) {
	if d.Notifier == nil {
		return
	}

	msg := fmt.Sprintf("Newsletter digest: %d summarized, %d dropped", report.Summarized, report.Dropped)
	if err := d.Notifier.Notify(ctx, msg); err != nil {
		log.Errorw("Could not send notification", "error", err)
	}
}

func saveJSON(ctx context.Context, log *zap.SugaredLogger, store artifacts.Store, rc artifacts.RunContext, stage artifacts.Stage, v any) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorw("Could not encode artifact", "stage", stage, "error", err)
		return
	}

	location, err := store.Save(ctx, rc, stage, payload)
	if err != nil {
		log.Errorw("Could not store artifact", "stage", stage, "error", err)
		return
	}
	if location != "" {
		log.Debugw("Stored artifact", "stage", stage, "location", location)
	}
}
