// Package core defines the interfaces shared by the speech service components.
package core

import (
	"context"
	"errors"

	"github.com/auraread/speech-service/internal/voice"
)

// ErrDocumentNotFound is returned by a DocumentDirectory for an unknown document id.
var ErrDocumentNotFound = errors.New("document not found")

// Kind classifies a speech backend for attempt ordering.
type Kind string

const (
	// KindNative is an operating-system speech API (SAPI, macOS say).
	KindNative Kind = "native"
	// KindLocal is an offline synthesizer running on this host.
	KindLocal Kind = "local"
	// KindRemote is a third-party speech service reached over the network.
	KindRemote Kind = "remote"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Backend is one speech synthesis engine.
//
// Synthesize writes an audio artifact and returns its path. The file extension tells the
// format (".wav" or ".mp3"). On error the backend may leave a partial file behind; the
// caller removes whatever path is returned.
type Backend interface {
	Name() string
	Kind() Kind
	Probe(ctx context.Context) error
	ListVoices(ctx context.Context) ([]voice.Descriptor, error)
	Synthesize(ctx context.Context, text, language, voiceID string) (string, error)
}

// DocumentDirectory resolves the stored language of a document.
type DocumentDirectory interface {
	Language(ctx context.Context, documentID string) (string, error)
}
