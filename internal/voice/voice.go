// Package voice provides voice descriptors, voice resolution and language helpers shared by
// every speech engine.
package voice

import (
	"strings"
)

const (
	// DefaultLanguage is used when a request carries no language.
	DefaultLanguage = "en"

	// UnknownLanguage marks a descriptor whose language could not be determined.
	UnknownLanguage = "unknown"
)

// Descriptor identifies one selectable voice reported by an engine.
type Descriptor struct {
	ID           string `json:"id"`
	DisplayName  string `json:"name"`
	LanguageCode string `json:"language"`
}

// MatchKind reports which rule selected a voice.
type MatchKind int

const (
	// MatchNone means no voice matched and the engine default applies.
	MatchNone MatchKind = iota
	// MatchExact means the requested id equals the descriptor id.
	MatchExact
	// MatchLanguage means the request language and the descriptor language overlap.
	MatchLanguage
	// MatchPartial means the requested id is a case-insensitive substring of the descriptor id.
	MatchPartial
)

// String returns a lowercase name for log lines.
func (m MatchKind) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchLanguage:
		return "language"
	case MatchPartial:
		return "partial"
	case MatchNone:
		return "none"
	default:
		return "none"
	}
}

// NormalizeLanguage lowercases a locale code and uses '-' as the subtag separator.
func NormalizeLanguage(language string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(language), "_", "-"))
}

// PrimarySubtag returns the first subtag of a locale code ("en" for "en-us").
func PrimarySubtag(language string) string {
	normalized := NormalizeLanguage(language)

	primary, _, _ := strings.Cut(normalized, "-")

	return primary
}

// Resolve picks a voice from catalog for the requested voice id and language.
//
// Rules, first match wins: exact id, language overlap, partial id. When nothing matches
// the returned kind is MatchNone and the caller keeps the engine's default voice.
func Resolve(catalog []Descriptor, voiceID, language string) (Descriptor, MatchKind) {
	if voiceID != "" {
		for _, candidate := range catalog {
			if candidate.ID == voiceID {
				return candidate, MatchExact
			}
		}
	}

	lang := NormalizeLanguage(language)
	if lang != "" {
		for _, candidate := range catalog {
			if languagesOverlap(lang, NormalizeLanguage(candidate.LanguageCode)) {
				return candidate, MatchLanguage
			}
		}
	}

	if voiceID != "" {
		wanted := strings.ToLower(voiceID)

		for _, candidate := range catalog {
			if strings.Contains(strings.ToLower(candidate.ID), wanted) {
				return candidate, MatchPartial
			}
		}
	}

	return Descriptor{}, MatchNone
}

func languagesOverlap(requested, candidate string) bool {
	if requested == "" || candidate == "" || candidate == UnknownLanguage {
		return false
	}

	return strings.Contains(candidate, requested) || strings.Contains(requested, candidate)
}

// WithLanguageName returns a copy of d whose display name carries the language name.
func WithLanguageName(d Descriptor) Descriptor {
	d.DisplayName = d.DisplayName + " (" + LanguageName(d.LanguageCode) + ")"

	return d
}
