// Package sanitize cleans decoded message bodies before they are summarized.
//
// A Pipeline is an ordered list of pure string transforms. New stages are
// appended to the list returned by Default; callers only ever use Apply.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Stage func(string) string

type Pipeline []Stage

// Apply runs every stage left to right, feeding each output into the next.
func (p Pipeline) Apply(s string) string {
	for _, stage := range p {
		s = stage(s)
	}

	return s
}

// Default is the chain applied to every message body.
func Default() Pipeline {
	return Pipeline{
		CollapseWhitespace,
		StripTags,
		RemoveInvisible,
		NormalizeUnicode,
		// stripping tags can leave two runs of whitespace next to each other
		CollapseWhitespace,
	}
}

func Sanitize(s string) string {
	return Default().Apply(s)
}

// CollapseWhitespace replaces every run of two or more whitespace characters
// with a single space. A lone whitespace character, newline included, is kept.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	run := 0
	var pending rune
	flush := func() {
		switch {
		case run == 1:
			b.WriteRune(pending)
		case run > 1:
			b.WriteByte(' ')
		}
		run = 0
	}

	for _, r := range s {
		if unicode.IsSpace(r) {
			if run == 0 {
				pending = r
			}
			run++
			continue
		}
		flush()
		b.WriteRune(r)
	}
	flush()

	return b.String()
}

var tagPattern = regexp.MustCompile(`<[^<]+?>`)

// StripTags removes angle-bracket delimited tags. It is lexical and keeps
// stripping until nothing tag-shaped is left, so "<<b>i>" ends up empty.
func StripTags(s string) string {
	for tagPattern.MatchString(s) {
		s = tagPattern.ReplaceAllString(s, "")
	}

	return s
}

var invisible = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u2060', '\ufeff', '\u00ad', '\u034f':
		return true
	}
	return false
})

// RemoveInvisible drops zero-width characters used to pad newsletter preheaders.
func RemoveInvisible(s string) string {
	out, _, err := transform.String(runes.Remove(invisible), s)
	if err != nil {
		return s
	}

	return out
}

func NormalizeUnicode(s string) string {
	return norm.NFC.String(s)
}
