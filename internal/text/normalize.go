// Package text prepares document text for speech engines.
//
// Normalization cleans up the punctuation and whitespace left behind by PDF extraction and
// rich-text editors. Chunking splits long text for remote endpoints that cap the length of a
// single request.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Regex patterns for normalization.
const (
	urlRegexPattern         = `https?://\S+`
	emailRegexPattern       = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referenceRegexPattern   = `\[\d+\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern  = `\s+`
	spaceBeforePunctPattern = `\s+([.,!?;:])`
)

// Patterns for preserving URLs and emails.
const (
	urlPlaceholderPattern   = `__URL_PLACEHOLDER_%d__`
	emailPlaceholderPattern = `__EMAIL_PLACEHOLDER_%d__`
)

// Punctuation constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
	softHyphen   = "\u00ad"
	zeroWidth    = "\u200b"
)

// Normalizer cleans text before it is handed to a speech engine.
type Normalizer struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	referencePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	spacePunctPattern *regexp.Regexp
	symbolReplacer    *strings.Replacer
}

// NewNormalizer creates a normalizer with its patterns compiled once.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		spacePunctPattern: regexp.MustCompile(spaceBeforePunctPattern),
		symbolReplacer: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			softHyphen, "",
			zeroWidth, "",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text with footnote markers removed, quotes and dashes simplified,
// repeated punctuation collapsed and whitespace reduced to single spaces.
// URLs and email addresses pass through untouched.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	preserved, placeholders := n.preserveTokens(text)

	cleaned := n.referencePattern.ReplaceAllString(preserved, "")
	cleaned = n.symbolReplacer.Replace(cleaned)
	cleaned = removeExcessivePunctuation(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ellipsisChar, ellipsis)
	cleaned = n.whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = n.spacePunctPattern.ReplaceAllString(cleaned, "$1")
	cleaned = strings.TrimSpace(cleaned)

	return restoreTokens(cleaned, placeholders)
}

// preserveTokens temporarily replaces URLs and emails with placeholders.
func (n *Normalizer) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	counter := 0

	replace := func(input string, pattern *regexp.Regexp, placeholderFormat string) string {
		return pattern.ReplaceAllStringFunc(input, func(match string) string {
			placeholder := fmt.Sprintf(placeholderFormat, counter)
			placeholders[placeholder] = match
			counter++

			return placeholder
		})
	}

	processed := replace(text, n.urlPattern, urlPlaceholderPattern)
	processed = replace(processed, n.emailPattern, emailPlaceholderPattern)

	return processed, placeholders
}

func restoreTokens(text string, placeholders map[string]string) string {
	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return text
}

// removeExcessivePunctuation keeps the first of a run of identical punctuation marks.
// The ASCII ellipsis survives as a single period; the caller restores "..." from "…".
func removeExcessivePunctuation(text string) string {
	var (
		result strings.Builder
		last   rune
	)

	result.Grow(len(text))

	for _, char := range text {
		if unicode.IsPunct(char) && char == last && char != '_' {
			continue
		}

		result.WriteRune(char)

		last = char
	}

	return result.String()
}
