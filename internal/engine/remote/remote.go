// Package remote implements speech backends backed by third-party speech services:
// Google Translate TTS, VoiceRSS and Microsoft Edge TTS.
//
// Every outbound request waits on a shared client-side rate limiter. HTTP 429 responses
// surface as speech.ErrRateLimited.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/auraread/speech-service/internal/artifact"
	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/voice"
)

// Endpoint is one remote speech service producing MP3 audio.
type Endpoint interface {
	Name() string
	// Probe reports configuration problems; it does not contact the service.
	Probe(ctx context.Context) error
	Voices() []voice.Descriptor
	Fetch(ctx context.Context, text, language, voiceID string, w io.Writer) error
}

// Backend adapts an Endpoint to core.Backend, writing its audio to an MP3 artifact.
type Backend struct {
	endpoint Endpoint
	tempDir  string
}

// New wraps endpoint as a remote speech backend.
func New(endpoint Endpoint, tempDir string) *Backend {
	return &Backend{endpoint: endpoint, tempDir: tempDir}
}

// Name returns the endpoint name.
func (b *Backend) Name() string { return b.endpoint.Name() }

// Kind reports core.KindRemote.
func (b *Backend) Kind() core.Kind { return core.KindRemote }

// Probe checks the endpoint configuration.
func (b *Backend) Probe(ctx context.Context) error { return b.endpoint.Probe(ctx) }

// ListVoices returns the endpoint's curated voices.
func (b *Backend) ListVoices(_ context.Context) ([]voice.Descriptor, error) {
	return append([]voice.Descriptor(nil), b.endpoint.Voices()...), nil
}

// Synthesize streams the endpoint's audio into an MP3 artifact.
func (b *Backend) Synthesize(ctx context.Context, text, language, voiceID string) (string, error) {
	path, err := artifact.Create(b.tempDir, artifact.ExtMP3)
	if err != nil {
		return "", err
	}

	// #nosec G304 -- path was created by artifact.Create
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return path, fmt.Errorf("failed to open artifact for writing: %w", err)
	}

	fetchErr := b.endpoint.Fetch(ctx, text, language, voiceID, file)
	closeErr := file.Close()

	if fetchErr != nil {
		return path, fetchErr
	}

	if closeErr != nil {
		return path, fmt.Errorf("failed to close artifact: %w", closeErr)
	}

	return path, nil
}
