package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","engines":["espeak","google_translate"]}`))
	})
	mux.HandleFunc("/api/documents/available_voices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"espeak":[{"id":"en","name":"english (English)","language":"en"}]}`))
	})
	mux.HandleFunc("/api/documents/book/tts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token cli-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid or missing authentication token"}`))

			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
		_, _ = w.Write([]byte("RIFF"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)

	out, err := execute(t, "health", "--url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Speech service is healthy (engines: espeak, google_translate)")
}

func TestVoicesCommand(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)

	out, err := execute(t, "voices", "--url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "espeak (1 voices)")
	assert.Contains(t, out, "english (English)")
}

func TestSpeakCommand(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)
	output := filepath.Join(t.TempDir(), "hello.wav")

	out, err := execute(t, "speak", "Hello", "world",
		"--url", server.URL, "--token", "cli-token", "--document", "book", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated: "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))
}

func TestSpeakCommand_TokenFromConfigFile(t *testing.T) {
	t.Parallel()

	server := newFakeService(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[server]\nauth_tokens = [\"cli-token\"]\n"), 0o600))

	output := filepath.Join(dir, "out.wav")

	_, err := execute(t, "speak", "Hi", "--url", server.URL, "--config", configPath, "--document", "book", "-o", output)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestSpeakCommand_InvalidPreference(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "speak", "Hi", "--url", "http://127.0.0.1:1", "--prefer-offline", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--prefer-offline")
}

func TestBatchCommand_FlagValidation(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "batch", "--url", "http://127.0.0.1:1")
	require.ErrorIs(t, err, errEitherTextOrChunks)

	_, err = execute(t, "batch", "--url", "http://127.0.0.1:1", "--text", "a", "--chunks", "b.json")
	require.ErrorIs(t, err, errCannotSpecifyBoth)
}

func TestURLFromListenAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://127.0.0.1:8080", urlFromListenAddress(":8080"))
	assert.Equal(t, "http://127.0.0.1:9000", urlFromListenAddress("0.0.0.0:9000"))
	assert.Equal(t, "http://speech.local:80", urlFromListenAddress("speech.local:80"))
	assert.Equal(t, defaultURL, urlFromListenAddress("not an address"))
}
