package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/auraread/speech-service/internal/artifact"
	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/voice"
)

// Log formats.
const (
	logFmtRequest        = "[%s] TTS request: %d chars, language: %s, prefer_offline: %t, voice: %s"
	logFmtAttempt        = "[%s] Attempting %s TTS"
	logFmtAttemptFailed  = "[%s] %s TTS failed: %v"
	logFmtAttemptSuccess = "[%s] %s TTS successful (%s)"
	logFmtAllFailed      = "[%s] %v"
	logFmtDiscardFailed  = "[%s] Failed to discard artifact from %s: %v"
	logFmtLateArtifact   = "Discarding artifact from %s returned after its time budget"
	logFmtListFailed     = "Failed to list voices for %s: %v"
	logFmtCancelled      = "[%s] TTS request cancelled: %v"
	defaultVoiceLabel    = "default"
)

// Orchestrator runs backends in a fixed preference order until one produces audio.
type Orchestrator struct {
	offline []core.Backend
	online  []core.Backend
	all     []core.Backend
	timeout time.Duration
	log     *logger.Logger
}

// New builds an orchestrator over the registry's available backends.
//
// The offline order is native, local, remote; the online order is remote, native, local.
// A zero timeout leaves backend calls bounded only by the caller's context.
func New(registry *Registry, timeout time.Duration, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		offline: registry.order(core.KindNative, core.KindLocal, core.KindRemote),
		online:  registry.order(core.KindRemote, core.KindNative, core.KindLocal),
		all:     registry.Backends(),
		timeout: timeout,
		log:     log,
	}
}

// Order returns the backend names attempted for the given preference.
func (o *Orchestrator) Order(preferOffline bool) []string {
	backends := o.online
	if preferOffline {
		backends = o.offline
	}

	names := make([]string, 0, len(backends))
	for _, backend := range backends {
		names = append(names, backend.Name())
	}

	return names
}

// Engines returns the names of every available backend.
func (o *Orchestrator) Engines() []string {
	names := make([]string, 0, len(o.all))
	for _, backend := range o.all {
		names = append(names, backend.Name())
	}

	return names
}

// Synthesize returns the audio of the first backend that succeeds.
//
// Failed attempts are recorded in order and their artifacts deleted. When no backend
// succeeds the error is an *AllEnginesFailedError carrying one entry per attempt. If ctx
// ends first the error wraps ErrCancelled and the context error instead.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if req.Text() == "" {
		return nil, ErrEmptyText
	}

	requestID := uuid.NewString()

	voiceLabel := req.VoiceID()
	if voiceLabel == "" {
		voiceLabel = defaultVoiceLabel
	}

	o.log.Info(logFmtRequest, requestID, len(req.Text()), req.Language(), req.PreferOffline(), voiceLabel)

	order := o.online
	if req.PreferOffline() {
		order = o.offline
	}

	attempts := make([]*EngineError, 0, len(order))

	for _, backend := range order {
		if ctx.Err() != nil {
			return nil, o.cancelled(ctx, requestID)
		}

		o.log.Info(logFmtAttempt, requestID, backend.Name())

		result, err := o.attempt(ctx, requestID, backend, req)
		if err == nil {
			o.log.Info(logFmtAttemptSuccess, requestID, backend.Name(), artifact.FormatFileSize(result.Size()))

			return result, nil
		}

		// A backend cut short by the caller's context did not fail on its own.
		if ctx.Err() != nil {
			return nil, o.cancelled(ctx, requestID)
		}

		o.log.Warn(logFmtAttemptFailed, requestID, backend.Name(), err)
		attempts = append(attempts, &EngineError{Engine: backend.Name(), Kind: backend.Kind(), Err: err})
	}

	failure := &AllEnginesFailedError{Attempts: attempts}
	o.log.Error(logFmtAllFailed, requestID, failure)

	return nil, failure
}

func (o *Orchestrator) cancelled(ctx context.Context, requestID string) error {
	o.log.Warn(logFmtCancelled, requestID, ctx.Err())

	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

type outcome struct {
	path string
	err  error
}

// attempt runs one backend within the time budget and validates its artifact.
func (o *Orchestrator) attempt(
	ctx context.Context,
	requestID string,
	backend core.Backend,
	req Request,
) (*Result, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.timeout)
	}

	defer cancel()

	done := make(chan outcome, 1)

	go func() {
		path, err := backend.Synthesize(attemptCtx, req.Text(), req.Language(), req.VoiceID())
		done <- outcome{path: path, err: err}
	}()

	select {
	case out := <-done:
		return o.accept(requestID, backend.Name(), out)
	case <-attemptCtx.Done():
		go o.discardLate(backend.Name(), done)

		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, o.timeout)
		}

		return nil, attemptCtx.Err()
	}
}

// accept turns a backend outcome into a Result, deleting the artifact on any failure.
func (o *Orchestrator) accept(requestID, engine string, out outcome) (*Result, error) {
	if out.err != nil {
		o.discard(requestID, engine, out.path)

		return nil, out.err
	}

	size, validateErr := artifact.Validate(out.path)
	if validateErr != nil {
		o.discard(requestID, engine, out.path)

		return nil, validateErr
	}

	return newResult(engine, out.path, size), nil
}

func (o *Orchestrator) discard(requestID, engine, path string) {
	discardErr := artifact.Discard(path)
	if discardErr != nil {
		o.log.Warn(logFmtDiscardFailed, requestID, engine, discardErr)
	}
}

// discardLate waits for a backend that overran its budget and deletes whatever it wrote.
func (o *Orchestrator) discardLate(engine string, done <-chan outcome) {
	out := <-done
	if out.path == "" {
		return
	}

	o.log.Warn(logFmtLateArtifact, engine)

	discardErr := artifact.Discard(out.path)
	if discardErr != nil {
		o.log.Warn(logFmtDiscardFailed, "late", engine, discardErr)
	}
}

// ListVoices returns the voices of every available backend keyed by backend name.
//
// Backends are queried concurrently. A backend whose listing fails contributes an
// empty list. Display names carry the human-readable language name.
func (o *Orchestrator) ListVoices(ctx context.Context) map[string][]voice.Descriptor {
	catalog := make(map[string][]voice.Descriptor, len(o.all))

	var (
		mutex sync.Mutex
		group sync.WaitGroup
	)

	for _, backend := range o.all {
		group.Go(func() {
			voices, err := backend.ListVoices(ctx)
			if err != nil {
				o.log.Warn(logFmtListFailed, backend.Name(), err)
			}

			named := make([]voice.Descriptor, 0, len(voices))
			for _, descriptor := range voices {
				named = append(named, voice.WithLanguageName(descriptor))
			}

			mutex.Lock()
			catalog[backend.Name()] = named
			mutex.Unlock()
		})
	}

	group.Wait()

	return catalog
}
