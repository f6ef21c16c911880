// Package speech implements the synthesis orchestrator: it runs speech backends in a fixed
// preference order until one produces audio, and aggregates the failures otherwise.
package speech

import (
	"strings"

	"github.com/auraread/speech-service/internal/voice"
)

// Request is a validated synthesis request. It is immutable once built by NewRequest.
type Request struct {
	text          string
	language      string
	preferOffline bool
	voiceID       string
}

// NewRequest validates and normalizes a synthesis request.
//
// Text must contain at least one non-space character. The language is lowercased with
// '-' separators and defaults to voice.DefaultLanguage.
func NewRequest(text, language string, preferOffline bool, voiceID string) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, ErrEmptyText
	}

	normalized := voice.NormalizeLanguage(language)
	if normalized == "" {
		normalized = voice.DefaultLanguage
	}

	return Request{
		text:          text,
		language:      normalized,
		preferOffline: preferOffline,
		voiceID:       strings.TrimSpace(voiceID),
	}, nil
}

// Text returns the text to speak.
func (r Request) Text() string { return r.text }

// Language returns the normalized language code.
func (r Request) Language() string { return r.language }

// PreferOffline reports whether on-host engines are tried before remote ones.
func (r Request) PreferOffline() bool { return r.preferOffline }

// VoiceID returns the requested voice id, or "" for the engine default.
func (r Request) VoiceID() string { return r.voiceID }
