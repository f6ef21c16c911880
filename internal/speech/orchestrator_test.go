package speech_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/speech"
	"github.com/auraread/speech-service/internal/voice"
)

var (
	errNotInstalled = errors.New("engine not installed")
	errEngineBroken = errors.New("engine crashed")
)

// fakeBackend writes a configurable artifact into dir and records its calls.
type fakeBackend struct {
	name     string
	kind     core.Kind
	dir      string
	ext      string
	content  []byte
	err      error
	probeErr error
	voices   []voice.Descriptor
	listErr  error
	block    time.Duration
	calls    *callLog

	mutex sync.Mutex
	paths []string
}

// callLog records backend invocations across backends in call order.
type callLog struct {
	mutex sync.Mutex
	names []string
}

func (c *callLog) add(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.names = append(c.names, name)
}

func (c *callLog) list() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]string(nil), c.names...)
}

func (f *fakeBackend) Name() string                  { return f.name }
func (f *fakeBackend) Kind() core.Kind               { return f.kind }
func (f *fakeBackend) Probe(_ context.Context) error { return f.probeErr }

func (f *fakeBackend) ListVoices(_ context.Context) ([]voice.Descriptor, error) {
	return f.voices, f.listErr
}

func (f *fakeBackend) Synthesize(_ context.Context, _, _, _ string) (string, error) {
	f.calls.add(f.name)

	if f.block > 0 {
		time.Sleep(f.block)
	}

	file, err := os.CreateTemp(f.dir, "fake-*"+f.ext)
	if err != nil {
		return "", err
	}

	f.mutex.Lock()
	f.paths = append(f.paths, file.Name())
	f.mutex.Unlock()

	_, _ = file.Write(f.content)
	_ = file.Close()

	return file.Name(), f.err
}

func (f *fakeBackend) writtenPaths() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]string(nil), f.paths...)
}

type fixture struct {
	dir   string
	calls *callLog
	log   *logger.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "speech-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return &fixture{dir: t.TempDir(), calls: &callLog{}, log: testLogger}
}

func (fx *fixture) backend(name string, kind core.Kind, ext string, content []byte, err error) *fakeBackend {
	return &fakeBackend{name: name, kind: kind, dir: fx.dir, ext: ext, content: content, err: err, calls: fx.calls}
}

func (fx *fixture) orchestrator(t *testing.T, timeout time.Duration, backends ...core.Backend) *speech.Orchestrator {
	t.Helper()

	registry := speech.NewRegistry(context.Background(), fx.log, backends...)

	return speech.New(registry, timeout, fx.log)
}

func mustRequest(t *testing.T, text, language string, preferOffline bool, voiceID string) speech.Request {
	t.Helper()

	req, err := speech.NewRequest(text, language, preferOffline, voiceID)
	require.NoError(t, err)

	return req
}

func assertNoResidualFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed attempts must not leave artifacts behind")
}

// waitDiscarded waits until the artifact written after a timeout has been removed.
func waitDiscarded(t *testing.T, backend *fakeBackend) {
	t.Helper()

	require.Eventually(t, func() bool {
		paths := backend.writtenPaths()
		if len(paths) == 0 {
			return false
		}

		_, statErr := os.Stat(paths[0])

		return os.IsNotExist(statErr)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSynthesize_FirstSuccessStopsTheChain(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("RIFF-native"), nil)
	local := fx.backend("espeak", core.KindLocal, ".wav", []byte("RIFF-local"), nil)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", []byte("ID3-remote"), nil)

	orchestrator := fx.orchestrator(t, 0, remote, local, native)

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "Hello world", "en", true, ""))
	require.NoError(t, err)

	assert.Equal(t, "windows_sapi", result.Engine())
	assert.Equal(t, "audio/wav", result.ContentType())
	assert.Equal(t, "speech.wav", result.Filename())
	assert.Equal(t, []string{"windows_sapi"}, fx.calls.list())

	data, err := result.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF-native"), data)

	assertNoResidualFiles(t, fx.dir)
}

func TestOrder_FollowsPreference(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", nil, errNotInstalled)
	local := fx.backend("espeak", core.KindLocal, ".wav", nil, errNotInstalled)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", nil, errNotInstalled)

	orchestrator := fx.orchestrator(t, 0, remote, local, native)

	assert.Equal(t, []string{"windows_sapi", "espeak", "google_translate"}, orchestrator.Order(true))
	assert.Equal(t, []string{"google_translate", "windows_sapi", "espeak"}, orchestrator.Order(false))

	_, offlineErr := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.Error(t, offlineErr)

	_, onlineErr := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", false, ""))
	require.Error(t, onlineErr)

	assert.Equal(t, []string{
		"windows_sapi", "espeak", "google_translate",
		"google_translate", "windows_sapi", "espeak",
	}, fx.calls.list())
}

func TestSynthesize_AllFailedAggregatesInAttemptOrder(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("partial"), errEngineBroken)
	local := fx.backend("espeak", core.KindLocal, ".wav", nil, nil)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", nil, errNotInstalled)

	orchestrator := fx.orchestrator(t, 0, native, local, remote)

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.Error(t, err)
	assert.Nil(t, result)

	var allFailed *speech.AllEnginesFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Attempts, 3)
	assert.Equal(t, []string{"windows_sapi", "espeak", "google_translate"}, allFailed.Engines())

	assert.Equal(t,
		"All TTS engines failed: windows_sapi: engine crashed; "+
			"espeak: generated audio file is empty; google_translate: engine not installed",
		err.Error(),
	)
	assert.ErrorIs(t, err, errEngineBroken)
	assert.Equal(t, speech.KindEngineFailure, speech.Classify(err))

	assertNoResidualFiles(t, fx.dir)
}

func TestSynthesize_FailedAttemptsLeaveNoArtifacts(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("half-written"), errEngineBroken)
	local := fx.backend("espeak", core.KindLocal, ".wav", nil, nil)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", []byte("ID3"), nil)

	orchestrator := fx.orchestrator(t, 0, native, local, remote)

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.NoError(t, err)

	for _, path := range append(native.writtenPaths(), local.writtenPaths()...) {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "artifact %s should be removed", filepath.Base(path))
	}

	require.NoError(t, result.Release())
	assertNoResidualFiles(t, fx.dir)
}

func TestSynthesize_RemoteFallbackWhenOfflineEnginesUnavailable(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", nil, nil)
	native.probeErr = errNotInstalled
	local := fx.backend("espeak", core.KindLocal, ".wav", nil, nil)
	local.probeErr = errNotInstalled
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", []byte("ID3-hello-world"), nil)

	registry := speech.NewRegistry(context.Background(), fx.log, native, local, remote)
	orchestrator := speech.New(registry, time.Second, fx.log)

	assert.Len(t, registry.Unavailable(), 2)
	assert.Equal(t, []string{"google_translate"}, orchestrator.Engines())

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "Hello world", "en", true, ""))
	require.NoError(t, err)

	assert.Equal(t, "google_translate", result.Engine())
	assert.Equal(t, "audio/mpeg", result.ContentType())
	assert.Equal(t, "speech.mp3", result.Filename())

	data, err := result.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-hello-world"), data)
}

func TestSynthesize_EmptyTextNeverReachesBackends(t *testing.T) {
	t.Parallel()

	_, err := speech.NewRequest("", "en", true, "")
	require.ErrorIs(t, err, speech.ErrEmptyText)
	assert.Equal(t, speech.KindValidation, speech.Classify(err))

	_, blankErr := speech.NewRequest("   \n", "en", true, "")
	require.ErrorIs(t, blankErr, speech.ErrEmptyText)

	fx := newFixture(t)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", []byte("ID3"), nil)
	orchestrator := fx.orchestrator(t, 0, remote)

	_, synthErr := orchestrator.Synthesize(context.Background(), speech.Request{})
	require.ErrorIs(t, synthErr, speech.ErrEmptyText)
	assert.Empty(t, fx.calls.list())
}

func TestSynthesize_RateLimitedRemoteIsClassified(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", nil, errNotInstalled)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", nil,
		fmt.Errorf("%w: HTTP 429 from translate.google.com", speech.ErrRateLimited))

	orchestrator := fx.orchestrator(t, 0, native, remote)

	_, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.Error(t, err)

	assert.ErrorIs(t, err, speech.ErrRateLimited)
	assert.Equal(t, speech.KindRateLimited, speech.Classify(err))
}

func TestClassify_MessageHeuristic(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	remote := fx.backend("voicerss", core.KindRemote, ".mp3", nil,
		errors.New("service answered: Too Many Requests"))

	orchestrator := fx.orchestrator(t, 0, remote)

	_, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", false, ""))
	require.Error(t, err)

	assert.NotErrorIs(t, err, speech.ErrRateLimited)
	assert.Equal(t, speech.KindRateLimited, speech.Classify(err))
	assert.Equal(t, speech.KindUnknown, speech.Classify(errors.New("boom")))
}

func TestClassify_HeuristicIgnoresOnHostAndFileErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", nil,
		errors.New("powershell execution failed: exit status 1 - output: cannot open speech-81429.wav"))
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", nil,
		&fs.PathError{Op: "stat", Path: "/tmp/speech-429.mp3", Err: fs.ErrNotExist})

	orchestrator := fx.orchestrator(t, 0, native, remote)

	_, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.Error(t, err)

	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, speech.KindEngineFailure, speech.Classify(err))
}

func TestSynthesize_CallerDeadlineStopsTheChain(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("RIFF-late"), nil)
	native.block = 200 * time.Millisecond
	local := fx.backend("espeak", core.KindLocal, ".wav", []byte("RIFF-local"), nil)

	orchestrator := fx.orchestrator(t, 0, native, local)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := orchestrator.Synthesize(ctx, mustRequest(t, "text", "en", true, ""))
	require.ErrorIs(t, err, speech.ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var allFailed *speech.AllEnginesFailedError
	assert.False(t, errors.As(err, &allFailed))
	assert.Equal(t, speech.KindCancelled, speech.Classify(err))
	assert.Equal(t, []string{"windows_sapi"}, fx.calls.list())

	waitDiscarded(t, native)
}

func TestSynthesize_CancelledBeforeFirstAttempt(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("RIFF"), nil)

	orchestrator := fx.orchestrator(t, 0, native)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orchestrator.Synthesize(ctx, mustRequest(t, "text", "en", true, ""))
	require.ErrorIs(t, err, speech.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fx.calls.list())
}

func TestSynthesize_TimeoutFallsThroughAndDiscardsLateArtifact(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("RIFF-late"), nil)
	native.block = 200 * time.Millisecond
	local := fx.backend("espeak", core.KindLocal, ".wav", []byte("RIFF-local"), nil)

	orchestrator := fx.orchestrator(t, 20*time.Millisecond, native, local)

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.NoError(t, err)
	assert.Equal(t, "espeak", result.Engine())
	require.NoError(t, result.Release())

	waitDiscarded(t, native)
}

func TestSynthesize_TimeoutIsRecorded(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", []byte("RIFF"), nil)
	native.block = 100 * time.Millisecond

	orchestrator := fx.orchestrator(t, 10*time.Millisecond, native)

	_, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))
	require.ErrorIs(t, err, speech.ErrTimeout)

	waitDiscarded(t, native)
}

func TestSynthesize_NoEngines(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	orchestrator := fx.orchestrator(t, 0)

	_, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", true, ""))

	var allFailed *speech.AllEnginesFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Empty(t, allFailed.Attempts)
	assert.Contains(t, err.Error(), "no speech engines are available")
}

func TestResult_ConsumeReleasesArtifact(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	remote := fx.backend("google_translate", core.KindRemote, ".mp3", []byte("ID3-data"), nil)
	orchestrator := fx.orchestrator(t, 0, remote)

	result, err := orchestrator.Synthesize(context.Background(), mustRequest(t, "text", "en", false, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(len("ID3-data")), result.Size())

	errConsumer := errors.New("client went away")

	consumeErr := result.Consume(func(reader io.Reader) error {
		buffer := make([]byte, 3)
		_, _ = reader.Read(buffer)

		return errConsumer
	})
	require.ErrorIs(t, consumeErr, errConsumer)

	assertNoResidualFiles(t, fx.dir)
	require.NoError(t, result.Release())
}

func TestListVoices_AggregatesAcrossBackends(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	native := fx.backend("windows_sapi", core.KindNative, ".wav", nil, nil)
	native.voices = []voice.Descriptor{{ID: "TTS_MS_EN-US_DAVID_11.0", DisplayName: "David", LanguageCode: "en-us"}}
	local := fx.backend("espeak", core.KindLocal, ".wav", nil, nil)
	local.listErr = errEngineBroken

	orchestrator := fx.orchestrator(t, 0, native, local)

	catalog := orchestrator.ListVoices(context.Background())

	require.Len(t, catalog, 2)
	require.Len(t, catalog["windows_sapi"], 1)
	assert.Equal(t, "David (English (US))", catalog["windows_sapi"][0].DisplayName)
	assert.Empty(t, catalog["espeak"])
	assert.NotNil(t, catalog["espeak"])
}
