package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const (
	Name         = "openai"
	DefaultModel = "gpt-3.5-turbo"
)

const systemPrompt = "You are a highly skilled assistant, adept at summarizing detailed text into concise, " +
	"informative summaries. Your task involves accurately capturing the content of the text and excelling at " +
	"discerning and conveying the author's point of view. It's crucial to identify the nuances of their opinions. " +
	"You are to interpret and summarize not only the factual content but also analyze the underlying perspectives " +
	"and arguments, making the author's stance on the topics discussed crystal clear in your summary."

const userPromptFormat = "Generate a clear and structured summary that includes an initial one-sentence overview " +
	"of the text. Follow this with bullet points summarizing each paragraph of the original content. Focus on " +
	"accurately conveying both the content and the author's opinions. Highlight the author's stance on the " +
	"discussed topics. Your summary should not only inform but also offer insight into what the author truly " +
	"thinks about these issues. Format it into an HTML snippet enclosed in a <div>: \"%s\""

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	Project      string
	// MaxInputChars truncates the text sent to the API; zero sends everything.
	MaxInputChars int
}

// Client summarizes text with the Chat Completions API.
type Client struct {
	client        osdk.Client
	model         string
	maxInputChars int
	log           *zap.SugaredLogger
}

func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	// one attempt per backend call, the aggregator bounds the time
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:        osdk.NewClient(opts...),
		model:         model,
		maxInputChars: cfg.MaxInputChars,
		log:           log.With("component", "summarize.openai"),
	}, nil
}

func (c *Client) Summarize(ctx context.Context, text string, limits summarize.Limits) (string, error) {
	startedAt := time.Now()
	text = truncate(text, c.maxInputChars)

	params := osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(c.model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.SystemMessage(systemPrompt),
			osdk.UserMessage(fmt.Sprintf(userPromptFormat, text)),
		},
	}
	if limits.MaxOutputTokens > 0 {
		params.MaxTokens = osdk.Int(int64(limits.MaxOutputTokens))
	}

	c.log.Debugw("provider request started", "model", c.model, "text_length", len(text))
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Debugw("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", classify(err)
	}

	if len(completion.Choices) == 0 {
		return "", &summarize.UnavailableError{Backend: Name, Err: errors.New("completion returned no choices")}
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", &summarize.UnavailableError{Backend: Name, Err: errors.New("completion returned no text")}
	}
	c.log.Debugw("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(summary))

	return summary, nil
}

func classify(err error) error {
	var apiErr *osdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == "insufficient_quota" {
			return &summarize.QuotaError{Backend: Name, Err: err}
		}
	}

	return &summarize.UnavailableError{Backend: Name, Err: err}
}

func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[:max])
}
