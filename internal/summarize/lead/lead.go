// Package lead is an extractive summarizer: the summary is the opening
// sentences of the text. It needs no network and is deterministic.
package lead

import (
	"context"
	"strings"
	"unicode"

	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const (
	Name             = "lead"
	DefaultSentences = 3
	// rough words-per-token ratio used to respect the output token limit
	wordsPerToken = 0.75
)

type Summarizer struct {
	Sentences int
}

func New(sentences int) Summarizer {
	if sentences <= 0 {
		sentences = DefaultSentences
	}
	return Summarizer{Sentences: sentences}
}

func (s Summarizer) Summarize(ctx context.Context, text string, limits summarize.Limits) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n := s.Sentences
	if n <= 0 {
		n = DefaultSentences
	}

	summary := strings.Join(firstSentences(text, n), " ")
	if limits.MaxOutputTokens > 0 {
		summary = limitWords(summary, int(float64(limits.MaxOutputTokens)*wordsPerToken))
	}

	return summary, nil
}

func firstSentences(text string, n int) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}

		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
		if len(sentences) == n {
			return sentences
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

func limitWords(text string, max int) string {
	if max <= 0 {
		max = 1
	}

	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}

	return strings.Join(words[:max], " ") + "…"
}
