// Package native implements the speech backend for the operating system's own voices:
// Windows SAPI through System.Speech and the macOS say command.
package native

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/book-expert/logger"

	"github.com/auraread/speech-service/internal/artifact"
	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/engine/command"
	"github.com/auraread/speech-service/internal/voice"
)

const (
	platformWindows     = "windows"
	platformDarwin      = "darwin"
	unsupportedName     = "native"
	defaultPowerShell   = "powershell"
	defaultSayCommand   = "say"
	logFmtVoiceSelected = "%s: selected voice %q (%s match)"
	logFmtVoiceFallback = "%s: no voice matches language %q or voice %q, using default voice"
)

// ErrUnsupportedPlatform is returned on platforms without a native speech API.
var ErrUnsupportedPlatform = errors.New("no native speech API on this platform")

// Options configures the native backend.
type Options struct {
	// Platform selects the driver; it defaults to runtime.GOOS.
	Platform string
	// TempDir receives the WAV artifacts.
	TempDir string
	// PowerShell is the PowerShell executable used on Windows.
	PowerShell string
	// Say is the say executable used on macOS.
	Say string
	// SAPIRate is the System.Speech rate from -10 to 10.
	SAPIRate int
	// SayRate is the say rate in words per minute; zero keeps the system default.
	SayRate int
	// Runner executes the platform programs; it defaults to command.Exec.
	Runner command.Runner
}

type installedVoice struct {
	descriptor voice.Descriptor
	selector   string
}

type driver interface {
	name() string
	listVoices(ctx context.Context) ([]installedVoice, error)
	synthesize(ctx context.Context, text, selector, outPath string) error
}

// handle is the lazily loaded voice catalog of the platform synthesizer.
type handle struct {
	voices    []voice.Descriptor
	selectors map[string]string
}

// Backend speaks with the platform's installed voices.
type Backend struct {
	driver   driver
	platform string
	tempDir  string
	log      *logger.Logger

	handle   atomic.Pointer[handle]
	initLock sync.Mutex
	// synthLock serialises synthesis; the platform synthesizers are not reentrant.
	synthLock sync.Mutex
}

// New creates the native backend for the configured platform.
func New(opts Options, log *logger.Logger) *Backend {
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}

	if opts.Runner == nil {
		opts.Runner = command.Exec{}
	}

	backend := &Backend{platform: opts.Platform, tempDir: opts.TempDir, log: log}

	switch opts.Platform {
	case platformWindows:
		powerShell := opts.PowerShell
		if powerShell == "" {
			powerShell = defaultPowerShell
		}

		backend.driver = &sapiDriver{runner: opts.Runner, powerShell: powerShell, rate: opts.SAPIRate}
	case platformDarwin:
		say := opts.Say
		if say == "" {
			say = defaultSayCommand
		}

		backend.driver = &sayDriver{runner: opts.Runner, say: say, rate: opts.SayRate}
	}

	return backend
}

// Name returns the engine name of the platform driver.
func (b *Backend) Name() string {
	if b.driver == nil {
		return unsupportedName
	}

	return b.driver.name()
}

// Kind reports core.KindNative.
func (b *Backend) Kind() core.Kind { return core.KindNative }

// Probe loads the platform voice catalog.
func (b *Backend) Probe(ctx context.Context) error {
	_, err := b.load(ctx)

	return err
}

// ListVoices returns the installed voices.
func (b *Backend) ListVoices(ctx context.Context) ([]voice.Descriptor, error) {
	h, err := b.load(ctx)
	if err != nil {
		return nil, err
	}

	return append([]voice.Descriptor(nil), h.voices...), nil
}

// Synthesize writes a WAV artifact of text spoken by the resolved voice.
func (b *Backend) Synthesize(ctx context.Context, text, language, voiceID string) (string, error) {
	h, err := b.load(ctx)
	if err != nil {
		return "", err
	}

	selector := b.selectVoice(h, language, voiceID)

	path, err := artifact.Create(b.tempDir, artifact.ExtWAV)
	if err != nil {
		return "", err
	}

	b.synthLock.Lock()
	defer b.synthLock.Unlock()

	synthErr := b.driver.synthesize(ctx, text, selector, path)
	if synthErr != nil {
		return path, synthErr
	}

	return path, nil
}

// load returns the platform handle, creating it on first use.
func (b *Backend) load(ctx context.Context) (*handle, error) {
	if loaded := b.handle.Load(); loaded != nil {
		return loaded, nil
	}

	b.initLock.Lock()
	defer b.initLock.Unlock()

	if loaded := b.handle.Load(); loaded != nil {
		return loaded, nil
	}

	if b.driver == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, b.platform)
	}

	installed, err := b.driver.listVoices(ctx)
	if err != nil {
		return nil, err
	}

	loaded := &handle{
		voices:    make([]voice.Descriptor, 0, len(installed)),
		selectors: make(map[string]string, len(installed)),
	}

	for _, entry := range installed {
		loaded.voices = append(loaded.voices, entry.descriptor)
		loaded.selectors[entry.descriptor.ID] = entry.selector
	}

	b.handle.Store(loaded)

	return loaded, nil
}

// selectVoice resolves the request against the catalog; "" keeps the default voice.
func (b *Backend) selectVoice(h *handle, language, voiceID string) string {
	if voiceID == "" && language == "" {
		return ""
	}

	descriptor, match := voice.Resolve(h.voices, voiceID, language)
	if match == voice.MatchNone {
		b.log.Warn(logFmtVoiceFallback, b.Name(), language, voiceID)

		return ""
	}

	b.log.Info(logFmtVoiceSelected, b.Name(), descriptor.ID, match)

	return h.selectors[descriptor.ID]
}
