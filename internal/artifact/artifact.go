// Package artifact manages the temporary audio files produced by speech engines.
//
// An artifact is created immediately before an engine runs, validated after it returns,
// and discarded either on failure or once the caller has read its bytes.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envTempDir = "SPEECH_TEMP_DIR"
)

// Directory and naming constants.
const (
	appDirName            = "auraread-speech"
	filePattern           = "speech-*"
	defaultDirPermissions = 0o750
)

// File extensions produced by the engines.
const (
	ExtWAV = ".wav"
	ExtMP3 = ".mp3"
)

// Content types returned to callers.
const (
	ContentTypeWAV  = "audio/wav"
	ContentTypeMPEG = "audio/mpeg"
)

// Download file names used in Content-Disposition headers.
const (
	FilenameWAV = "speech.wav"
	FilenameMP3 = "speech.mp3"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	formatMB = "%.1f MB"
	formatKB = "%.1f KB"
	formatB  = "%d B"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir  = "failed to create directory %s: %w"
	errFmtFailedToCreateFile = "failed to create artifact in %s: %w"
	errFmtFailedToStat       = "failed to stat artifact: %w"
	errFmtFailedToRemove     = "failed to remove artifact %s: %w"
)

var (
	// ErrMissing is returned when an engine reported success but wrote no file.
	ErrMissing = errors.New("generated audio file does not exist")
	// ErrEmpty is returned when an engine wrote a zero-length file.
	ErrEmpty = errors.New("generated audio file is empty")
)

// ResolveDir returns the directory for temporary artifacts, honoring the configured value,
// then the SPEECH_TEMP_DIR environment variable, then a subdirectory of os.TempDir.
func ResolveDir(configured string) string {
	if configured != "" {
		return configured
	}

	if dir := os.Getenv(envTempDir); dir != "" {
		return dir
	}

	return filepath.Join(os.TempDir(), appDirName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// Create reserves an empty artifact file with the given extension and returns its path.
func Create(dir, ext string) (string, error) {
	dirErr := EnsureDir(dir)
	if dirErr != nil {
		return "", dirErr
	}

	file, err := os.CreateTemp(dir, filePattern+ext)
	if err != nil {
		return "", fmt.Errorf(errFmtFailedToCreateFile, dir, err)
	}

	closeErr := file.Close()
	if closeErr != nil {
		_ = os.Remove(file.Name())

		return "", fmt.Errorf(errFmtFailedToCreateFile, dir, closeErr)
	}

	return file.Name(), nil
}

// Validate checks that the artifact exists and is not empty, returning its size.
func Validate(path string) (int64, error) {
	if path == "" {
		return 0, ErrMissing
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrMissing
		}

		return 0, fmt.Errorf(errFmtFailedToStat, err)
	}

	if info.Size() == 0 {
		return 0, ErrEmpty
	}

	return info.Size(), nil
}

// Discard removes the artifact. A path that no longer exists is not an error.
func Discard(path string) error {
	if path == "" {
		return nil
	}

	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf(errFmtFailedToRemove, filepath.Base(path), err)
	}

	return nil
}

// ContentType infers the content type from the artifact extension.
func ContentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ExtWAV) {
		return ContentTypeWAV
	}

	return ContentTypeMPEG
}

// Filename returns the download file name for a content type.
func Filename(contentType string) string {
	if contentType == ContentTypeWAV {
		return FilenameWAV
	}

	return FilenameMP3
}

// FormatFileSize formats a file size in a human-readable string (e.g., "500.5 KB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatB, bytes)
	}
}
