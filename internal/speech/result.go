package speech

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/auraread/speech-service/internal/artifact"
)

// Result owns the audio artifact produced by a successful synthesis.
//
// Ownership passes to the caller, who must call Release (directly or through Consume)
// once the bytes are no longer needed.
type Result struct {
	engine      string
	path        string
	size        int64
	contentType string

	releaseOnce sync.Once
	releaseErr  error
}

func newResult(engine, path string, size int64) *Result {
	return &Result{
		engine:      engine,
		path:        path,
		size:        size,
		contentType: artifact.ContentType(path),
	}
}

// Engine returns the name of the backend that produced the audio.
func (r *Result) Engine() string { return r.engine }

// ContentType returns "audio/wav" or "audio/mpeg".
func (r *Result) ContentType() string { return r.contentType }

// Filename returns the download file name matching the content type.
func (r *Result) Filename() string { return artifact.Filename(r.contentType) }

// Size returns the artifact size in bytes.
func (r *Result) Size() int64 { return r.size }

// Consume passes the audio stream to fn and releases the artifact afterwards,
// whether or not fn succeeds.
func (r *Result) Consume(fn func(io.Reader) error) (err error) {
	defer func() {
		releaseErr := r.Release()
		if err == nil {
			err = releaseErr
		}
	}()

	file, openErr := os.Open(r.path)
	if openErr != nil {
		return fmt.Errorf("failed to open audio artifact: %w", openErr)
	}

	defer file.Close()

	return fn(file)
}

// Bytes reads the whole artifact and releases it.
func (r *Result) Bytes() ([]byte, error) {
	var data []byte

	err := r.Consume(func(reader io.Reader) error {
		var readErr error

		data, readErr = io.ReadAll(reader)
		if readErr != nil {
			return fmt.Errorf("failed to read audio artifact: %w", readErr)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Release deletes the artifact. It is safe to call more than once.
func (r *Result) Release() error {
	r.releaseOnce.Do(func() {
		r.releaseErr = artifact.Discard(r.path)
	})

	return r.releaseErr
}
