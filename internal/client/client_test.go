package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraread/speech-service/internal/client"
)

const testToken = "secret"

// createMockSpeechServer creates a mock HTTP server that routes by path.
func createMockSpeechServer(
	t *testing.T,
	responses map[string]func(w http.ResponseWriter, r *http.Request),
) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, exists := responses[r.URL.Path]
		if !exists {
			t.Errorf("Unexpected request path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)

			return
		}

		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return server
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "client-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func healthyHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","engines":["espeak","google_translate"]}`))
}

func audioHandler(t *testing.T) func(w http.ResponseWriter, r *http.Request) {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		if r.Header.Get("Authorization") != "Token "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid or missing authentication token"}`))

			return
		}

		text, _ := payload["text"].(string)
		if strings.Contains(text, "wav") {
			w.Header().Set("Content-Type", "audio/wav")
			w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
			_, _ = w.Write([]byte("RIFF" + text))

			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
		_, _ = w.Write([]byte("ID3" + text))
	}
}

func TestGenerateSpeech_Success(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/documents/doc-1/tts": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Token "+testToken, r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			w.Header().Set("Content-Type", "audio/wav")
			w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
			_, _ = w.Write([]byte("RIFF-data"))
		},
	})

	httpClient := client.NewHTTPClient(server.URL+"/", testToken, 5*time.Second)
	preferOffline := false

	audio, err := httpClient.GenerateSpeech(context.Background(), "doc-1", client.SpeechRequest{
		Text:          "Hello world",
		Language:      "en-US",
		PreferOffline: &preferOffline,
		VoiceName:     "David",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("RIFF-data"), audio.Data)
	assert.Equal(t, "audio/wav", audio.ContentType)
	assert.Equal(t, "speech.wav", audio.Filename)
	assert.Equal(t, "Hello world", received["text"])
	assert.Equal(t, "en-US", received["language"])
	assert.Equal(t, false, received["prefer_offline"])
	assert.Equal(t, "David", received["voice_name"])
}

func TestGenerateSpeech_OmitsUnsetPreference(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/documents/7/tts": func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3"))
		},
	})

	audio, err := client.NewHTTPClient(server.URL, "", time.Second).
		GenerateSpeech(context.Background(), "7", client.SpeechRequest{Text: "Hi"})
	require.NoError(t, err)

	assert.NotContains(t, received, "prefer_offline")
	assert.Equal(t, "speech.mp3", audio.Filename)
}

func TestGenerateSpeech_ValidatesInput(t *testing.T) {
	t.Parallel()

	httpClient := client.NewHTTPClient("http://127.0.0.1:1", "", time.Second)

	_, err := httpClient.GenerateSpeech(context.Background(), "1", client.SpeechRequest{Text: "  "})
	require.ErrorIs(t, err, client.ErrTextEmpty)

	_, err = httpClient.GenerateSpeech(context.Background(), "", client.SpeechRequest{Text: "Hi"})
	require.ErrorIs(t, err, client.ErrDocumentIDEmpty)
}

func TestGenerateSpeech_ErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		message     string
		rateLimited bool
	}{
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"error":"Speech service rate limit reached."}`,
			message:     "Speech service rate limit reached.",
			rateLimited: true,
		},
		{
			name:    "engines failed",
			status:  http.StatusInternalServerError,
			body:    `{"error":"Error generating speech: all TTS engines failed (espeak)"}`,
			message: "Error generating speech: all TTS engines failed (espeak)",
		},
		{
			name:    "plain body",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			message: "upstream down",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
				"/api/documents/1/tts": func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tc.status)
					_, _ = w.Write([]byte(tc.body))
				},
			})

			_, err := client.NewHTTPClient(server.URL, "", time.Second).
				GenerateSpeech(context.Background(), "1", client.SpeechRequest{Text: "Hi"})
			require.Error(t, err)

			var serviceErr *client.ServiceError
			require.ErrorAs(t, err, &serviceErr)
			assert.Equal(t, tc.status, serviceErr.StatusCode)
			assert.Equal(t, tc.message, serviceErr.Message)
			assert.Equal(t, tc.rateLimited, errors.Is(err, client.ErrRateLimited))
		})
	}
}

func TestGenerateSpeech_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/documents/1/tts": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "audio/mpeg")
			w.WriteHeader(http.StatusOK)
		},
	})

	_, err := client.NewHTTPClient(server.URL, "", time.Second).
		GenerateSpeech(context.Background(), "1", client.SpeechRequest{Text: "Hi"})
	require.ErrorIs(t, err, client.ErrEmptyAudio)
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/documents/available_voices": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"espeak":[{"id":"en","name":"english (English)","language":"en"}],"edge_tts":[]}`))
		},
	})

	catalog, err := client.NewHTTPClient(server.URL, "", time.Second).ListVoices(context.Background())
	require.NoError(t, err)

	require.Len(t, catalog["espeak"], 1)
	assert.Equal(t, "en", catalog["espeak"][0].ID)
	assert.Equal(t, "english (English)", catalog["espeak"][0].DisplayName)
	assert.Empty(t, catalog["edge_tts"])
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/health": healthyHandler,
	})

	health, err := client.NewHTTPClient(server.URL, "", time.Second).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"espeak", "google_translate"}, health.Engines)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	t.Parallel()

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/health": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"degraded","engines":[]}`))
		},
	})

	_, err := client.NewHTTPClient(server.URL, "", time.Second).HealthCheck(context.Background())
	require.ErrorIs(t, err, client.ErrUnhealthy)
}

func TestBatch_ProcessChunks(t *testing.T) {
	t.Parallel()

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/health":                healthyHandler,
		"/api/documents/doc/tts": audioHandler(t),
	})

	dir := t.TempDir()
	chunksPath := filepath.Join(dir, "chunks.json")
	require.NoError(t, os.WriteFile(chunksPath, []byte(`["first chunk","second wav chunk","third chunk"]`), 0o600))

	outputDir := filepath.Join(dir, "out")
	batch := client.NewBatch(
		client.NewHTTPClient(server.URL, testToken, 5*time.Second),
		client.BatchOptions{DocumentID: "doc", Workers: 2},
		createTestLogger(t),
	)

	outputs, err := batch.ProcessChunks(context.Background(), chunksPath, outputDir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(outputDir, "chunk_0001.mp3"),
		filepath.Join(outputDir, "chunk_0002.wav"),
		filepath.Join(outputDir, "chunk_0003.mp3"),
	}, outputs)

	data, err := os.ReadFile(outputs[1])
	require.NoError(t, err)
	assert.Equal(t, "RIFFsecond wav chunk", string(data))
}

func TestBatch_ContinuesAfterFailedChunk(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/health": healthyHandler,
		"/api/documents/doc/tts": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)

			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)

			if payload["text"] == "bad" {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Error generating speech"}`))

				return
			}

			w.Header().Set("Content-Type", "audio/mpeg")
			w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
			_, _ = w.Write([]byte("ID3"))
		},
	})

	dir := t.TempDir()
	chunksPath := filepath.Join(dir, "chunks.json")
	require.NoError(t, os.WriteFile(chunksPath, []byte(`["good","bad","good again"]`), 0o600))

	batch := client.NewBatch(
		client.NewHTTPClient(server.URL, "", 5*time.Second),
		client.BatchOptions{DocumentID: "doc", Workers: 1},
		createTestLogger(t),
	)

	outputs, err := batch.ProcessChunks(context.Background(), chunksPath, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2 failed")
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, outputs[1])
	assert.FileExists(t, outputs[0])
	assert.FileExists(t, outputs[2])
}

func TestBatch_ProcessTextSplitsIntoChunks(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := createMockSpeechServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"/health": healthyHandler,
		"/api/documents/doc/tts": func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3"))
		},
	})

	batch := client.NewBatch(
		client.NewHTTPClient(server.URL, "", 5*time.Second),
		client.BatchOptions{DocumentID: "doc"},
		createTestLogger(t),
	)

	outputs, err := batch.ProcessText(
		context.Background(), "First sentence here. Second sentence here. Third one.", 25, t.TempDir(),
	)
	require.NoError(t, err)
	assert.Len(t, outputs, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatch_InputValidation(t *testing.T) {
	t.Parallel()

	batch := client.NewBatch(client.NewHTTPClient("http://127.0.0.1:1", "", time.Second), client.BatchOptions{}, createTestLogger(t))

	_, err := batch.ProcessChunks(context.Background(), "", t.TempDir())
	require.ErrorIs(t, err, client.ErrChunksPathEmpty)

	emptyChunks := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(emptyChunks, []byte(`[]`), 0o600))

	_, err = batch.ProcessChunks(context.Background(), emptyChunks, t.TempDir())
	require.ErrorIs(t, err, client.ErrNoChunksFound)

	_, err = batch.ProcessText(context.Background(), "   ", 10, t.TempDir())
	require.ErrorIs(t, err, client.ErrTextEmpty)
}
