// Package localmodel summarizes text with a pretrained sequence-to-sequence
// model served by a local inference server that speaks the Hugging Face
// pipeline JSON format.
package localmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const (
	Name             = "local_model"
	DefaultModel     = "facebook/bart-large-cnn"
	DefaultURL       = "http://localhost:8080/models/" + DefaultModel
	defaultNumBeams  = 2
	maxErrorBodySize = 512
)

type Config struct {
	URL      string
	Model    string
	NumBeams int
	// MinLength is the minimum summary length in tokens.
	MinLength int
	Client    *http.Client
}

type Client struct {
	url       string
	model     string
	numBeams  int
	minLength int
	http      *http.Client
	log       *zap.SugaredLogger
}

type parameters struct {
	MaxLength  int  `json:"max_length,omitempty"`
	MinLength  int  `json:"min_length"`
	NumBeams   int  `json:"num_beams"`
	Truncation bool `json:"truncation"`
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type summaryItem struct {
	SummaryText string `json:"summary_text"`
}

func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("local model url %q must be http or https", url)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	numBeams := cfg.NumBeams
	if numBeams <= 0 {
		numBeams = defaultNumBeams
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Client{
		url:       url,
		model:     model,
		numBeams:  numBeams,
		minLength: cfg.MinLength,
		http:      client,
		log:       log.With("component", "summarize.localmodel"),
	}, nil
}

func (c *Client) Summarize(ctx context.Context, text string, limits summarize.Limits) (string, error) {
	startedAt := time.Now()

	payload, err := json.Marshal(request{
		Inputs: text,
		Parameters: parameters{
			MaxLength:  limits.MaxOutputTokens,
			MinLength:  c.minLength,
			NumBeams:   c.numBeams,
			Truncation: true,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debugw("Summarizing text", "model", c.model, "text_length", len(text))
	res, err := c.http.Do(req)
	if err != nil {
		return "", &summarize.UnavailableError{Backend: Name, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		statusErr := fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode == http.StatusTooManyRequests {
			return "", &summarize.QuotaError{Backend: Name, Err: statusErr}
		}
		return "", &summarize.UnavailableError{Backend: Name, Err: statusErr}
	}

	var items []summaryItem
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return "", &summarize.UnavailableError{Backend: Name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(items) == 0 || strings.TrimSpace(items[0].SummaryText) == "" {
		return "", &summarize.UnavailableError{Backend: Name, Err: errors.New("model returned no summary")}
	}

	c.log.Debugw("Returning summary", "model", c.model, "duration_ms", time.Since(startedAt).Milliseconds())

	return strings.TrimSpace(items[0].SummaryText), nil
}
