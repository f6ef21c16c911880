// Package service assembles the speech engines and document directory described by the
// configuration.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/auraread/speech-service/internal/config"
	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/documents"
	"github.com/auraread/speech-service/internal/engine/local"
	"github.com/auraread/speech-service/internal/engine/native"
	"github.com/auraread/speech-service/internal/engine/remote"
)

// ErrJetStreamRequired indicates a NATS document directory without a JetStream context.
var ErrJetStreamRequired = errors.New("the nats document directory requires a JetStream connection")

// Backends builds every configured engine in registration order: native, local, then the
// remote engines in their configured order. All remote engines share one rate limiter.
func Backends(cfg *config.Config, tempDir string, log *logger.Logger) []core.Backend {
	var backends []core.Backend

	if !cfg.Speech.Native.Disabled {
		backends = append(backends, native.New(native.Options{
			TempDir:    tempDir,
			PowerShell: cfg.Speech.Native.PowerShell,
			Say:        cfg.Speech.Native.Say,
			SAPIRate:   cfg.Speech.Native.SAPIRate,
			SayRate:    cfg.Speech.Native.SayRate,
		}, log))
	}

	if !cfg.Speech.Local.Disabled {
		backends = append(backends, local.New(local.Options{
			Candidates: cfg.Speech.Local.Programs,
			TempDir:    tempDir,
			Rate:       cfg.Speech.Local.Rate,
		}, log))
	}

	remoteCfg := cfg.Speech.Remote
	transport := remote.NewTransport(
		&http.Client{Timeout: cfg.HTTPTimeout()},
		remote.NewLimiter(remoteCfg.RequestsPerMinute, remoteCfg.Burst),
	)

	for _, name := range remoteCfg.Engines {
		endpoint := remoteEndpoint(name, remoteCfg, transport)
		if endpoint == nil {
			log.Warn("Skipping unknown remote engine %q", name)

			continue
		}

		backends = append(backends, remote.New(endpoint, tempDir))
	}

	return backends
}

func remoteEndpoint(name string, cfg config.RemoteConfig, transport *remote.Transport) remote.Endpoint {
	switch name {
	case config.EngineGoogle:
		return remote.NewGoogle(transport, remote.GoogleOptions{
			URLFormat:  cfg.GoogleURLFormat,
			TLDs:       cfg.GoogleTLDs,
			ChunkLimit: cfg.GoogleChunkLimit,
		})
	case config.EngineVoiceRSS:
		return remote.NewVoiceRSS(transport, remote.VoiceRSSOptions{
			BaseURL: cfg.VoiceRSSURL,
			APIKey:  cfg.VoiceRSSAPIKey,
		})
	case config.EngineEdge:
		return remote.NewEdge(transport, remote.EdgeOptions{DefaultVoice: cfg.EdgeVoice})
	default:
		return nil
	}
}

// Documents builds the configured document directory. The NATS directory is seeded with
// the languages listed in the configuration.
func Documents(
	ctx context.Context,
	cfg *config.Config,
	jetstreamContext nats.JetStreamContext,
) (core.DocumentDirectory, error) {
	if cfg.Documents.Source != config.DocumentsSourceNATS {
		return documents.NewStatic(cfg.Documents.Languages, cfg.Documents.RequireKnown), nil
	}

	if jetstreamContext == nil {
		return nil, ErrJetStreamRequired
	}

	directory, err := documents.NewKV(jetstreamContext, cfg.NATS.DocumentsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open document directory: %w", err)
	}

	err = directory.Seed(ctx, cfg.Documents.Languages)
	if err != nil {
		return nil, fmt.Errorf("failed to seed document directory: %w", err)
	}

	return directory, nil
}
