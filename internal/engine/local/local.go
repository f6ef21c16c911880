// Package local implements the offline speech backend driven by espeak-ng or espeak.
package local

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/book-expert/logger"

	"github.com/auraread/speech-service/internal/artifact"
	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/engine/command"
	"github.com/auraread/speech-service/internal/voice"
)

// EngineName is the backend name reported in logs, errors and voice listings.
const EngineName = "espeak"

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 150

const (
	headerMarker        = "Pty"
	minVoiceFields      = 4
	languageField       = 1
	voiceNameField      = 3
	logFmtResolved      = "%s: using %s"
	logFmtVoiceSelected = "%s: selected voice %q (%s match)"
	logFmtVoiceFallback = "%s: no voice matches language %q or voice %q, using default voice"
)

// DefaultCandidates are the programs looked up, in order.
var DefaultCandidates = []string{"espeak-ng", "espeak"}

// Options configures the local backend.
type Options struct {
	Candidates []string
	TempDir    string
	Rate       int
	Runner     command.Runner
	LookPath   func(string) (string, error)
}

type handle struct {
	program string
	voices  []voice.Descriptor
}

// Backend synthesizes speech with a locally installed espeak.
type Backend struct {
	candidates []string
	tempDir    string
	rate       int
	runner     command.Runner
	lookPath   func(string) (string, error)
	log        *logger.Logger

	handle    atomic.Pointer[handle]
	initLock  sync.Mutex
	synthLock sync.Mutex
}

// New creates the local backend. The program is resolved on first use.
func New(opts Options, log *logger.Logger) *Backend {
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultCandidates
	}

	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}

	if opts.Runner == nil {
		opts.Runner = command.Exec{}
	}

	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}

	return &Backend{
		candidates: opts.Candidates,
		tempDir:    opts.TempDir,
		rate:       opts.Rate,
		runner:     opts.Runner,
		lookPath:   opts.LookPath,
		log:        log,
	}
}

// Name returns "espeak".
func (b *Backend) Name() string { return EngineName }

// Kind reports core.KindLocal.
func (b *Backend) Kind() core.Kind { return core.KindLocal }

// Probe resolves the program and loads its voice list.
func (b *Backend) Probe(ctx context.Context) error {
	_, err := b.load(ctx)

	return err
}

// ListVoices returns the voices reported by espeak --voices.
func (b *Backend) ListVoices(ctx context.Context) ([]voice.Descriptor, error) {
	h, err := b.load(ctx)
	if err != nil {
		return nil, err
	}

	return append([]voice.Descriptor(nil), h.voices...), nil
}

// Synthesize writes a WAV artifact with the text read from standard input.
func (b *Backend) Synthesize(ctx context.Context, text, language, voiceID string) (string, error) {
	h, err := b.load(ctx)
	if err != nil {
		return "", err
	}

	path, err := artifact.Create(b.tempDir, artifact.ExtWAV)
	if err != nil {
		return "", err
	}

	args := []string{"-b", "1", "-s", strconv.Itoa(b.rate), "-w", path}

	selected := b.selectVoice(h, language, voiceID)
	if selected != "" {
		args = append(args, "-v", selected)
	}

	args = append(args, "--stdin")

	b.synthLock.Lock()
	defer b.synthLock.Unlock()

	_, runErr := b.runner.Run(ctx, text, h.program, args...)
	if runErr != nil {
		return path, fmt.Errorf("espeak speech generation failed: %w", runErr)
	}

	return path, nil
}

func (b *Backend) load(ctx context.Context) (*handle, error) {
	if loaded := b.handle.Load(); loaded != nil {
		return loaded, nil
	}

	b.initLock.Lock()
	defer b.initLock.Unlock()

	if loaded := b.handle.Load(); loaded != nil {
		return loaded, nil
	}

	program, err := command.FindFirst(b.lookPath, b.candidates...)
	if err != nil {
		return nil, err
	}

	output, err := b.runner.Run(ctx, "", program, "--voices")
	if err != nil {
		return nil, fmt.Errorf("failed to list espeak voices: %w", err)
	}

	loaded := &handle{program: program, voices: ParseVoices(string(output))}
	b.handle.Store(loaded)
	b.log.Info(logFmtResolved, EngineName, program)

	return loaded, nil
}

func (b *Backend) selectVoice(h *handle, language, voiceID string) string {
	if voiceID == "" && language == "" {
		return ""
	}

	descriptor, match := voice.Resolve(h.voices, voiceID, language)
	if match == voice.MatchNone {
		b.log.Warn(logFmtVoiceFallback, EngineName, language, voiceID)

		return ""
	}

	b.log.Info(logFmtVoiceSelected, EngineName, descriptor.ID, match)

	return descriptor.ID
}

// ParseVoices reads the table printed by "espeak --voices".
//
// The voice id is the language column, which espeak accepts for -v. Display names come from
// the VoiceName column with underscores turned into spaces. Duplicate languages keep their
// first entry.
func ParseVoices(output string) []voice.Descriptor {
	var voices []voice.Descriptor

	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < minVoiceFields || fields[0] == headerMarker {
			continue
		}

		language := fields[languageField]
		if seen[language] {
			continue
		}

		seen[language] = true

		voices = append(voices, voice.Descriptor{
			ID:           language,
			DisplayName:  strings.ReplaceAll(fields[voiceNameField], "_", " "),
			LanguageCode: voice.NormalizeLanguage(language),
		})
	}

	return voices
}
