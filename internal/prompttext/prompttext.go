// Package prompttext holds the local checks applied to prompt text before and
// after it reaches the completion endpoint.
package prompttext

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/davidbz/promptfmt/internal/domain"
)

// MaxContentLength is the largest accepted prompt, in characters.
const MaxContentLength = 50000

var (
	// ErrEmptyContent is returned for missing content.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrBlankContent is returned for whitespace-only content.
	ErrBlankContent = errors.New("content cannot be blank")

	// ErrContentTooLong is returned when content exceeds MaxContentLength.
	ErrContentTooLong = fmt.Errorf("content cannot exceed %d characters", MaxContentLength)
)

// Validate checks that content is usable as a prompt.
func Validate(content string) error {
	if content == "" {
		return ErrEmptyContent
	}

	if strings.TrimSpace(content) == "" {
		return ErrBlankContent
	}

	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}

	return nil
}

// ValidateStyle resolves a style name, defaulting to basic.
func ValidateStyle(name string) (domain.FormatStyle, error) {
	return domain.ParseFormatStyle(name)
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\t", "  ")

// Sanitize normalises line endings, expands tabs and trims the text.
func Sanitize(content string) string {
	return strings.TrimSpace(lineEndings.Replace(content))
}

//nolint:gochecknoglobals // Compiled once
var markdownIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#\s+`),
	regexp.MustCompile(`(?m)^##\s+`),
	regexp.MustCompile("(?m)^```"),
	regexp.MustCompile(`(?m)^\*\s+`),
	regexp.MustCompile(`(?m)^-\s+`),
	regexp.MustCompile(`(?m)^\d+\.\s+`),
	regexp.MustCompile(`(?m)^>\s+`),
	regexp.MustCompile(`\*\*.*\*\*`),
	regexp.MustCompile(`\*.*\*`),
}

// formattedThreshold is how many indicators mark text as already Markdown.
const formattedThreshold = 3

// IsAlreadyFormatted reports whether content already looks like structured
// Markdown.
func IsAlreadyFormatted(content string) bool {
	matches := 0
	for _, indicator := range markdownIndicators {
		if indicator.MatchString(content) {
			matches++
		}
	}
	return matches >= formattedThreshold
}

// Complexity is a coarse size bucket for a prompt.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Stats summarises the size of a prompt.
type Stats struct {
	Characters int
	Words      int
	Lines      int
}

// Measure counts characters, words and lines in content.
func Measure(content string) Stats {
	return Stats{
		Characters: utf8.RuneCountInString(content),
		Words:      len(strings.Fields(content)),
		Lines:      strings.Count(content, "\n") + 1,
	}
}

// EstimateComplexity buckets content by length, line count and word count.
func EstimateComplexity(content string) Complexity {
	s := Measure(content)

	switch {
	case s.Characters < 500 && s.Lines < 10 && s.Words < 100:
		return ComplexitySimple
	case s.Characters < 2000 && s.Lines < 50 && s.Words < 400:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}
