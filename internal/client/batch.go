package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/auraread/speech-service/internal/text"
)

const (
	// DefaultWorkers is the number of chunks synthesized at once.
	DefaultWorkers = 2
	// DefaultChunkLimit is the character limit used when splitting plain text.
	DefaultChunkLimit = 1000
	// HealthCheckTimeout bounds the health check run before a batch.
	HealthCheckTimeout = 10 * time.Second

	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Static errors.
var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

const (
	errFmtHealthCheckFailed     = "speech service health check failed: %w"
	logFmtServiceHealthy        = "Speech service is healthy (engines: %v), processing %d chunks"
	logFmtGeneratedAudio        = "Generated audio: %s (%d bytes, %s)"
	outputFileFormat            = "chunk_%04d"
	errFmtChunkFailed           = "chunk %d failed: %w"
	logFmtChunkProcessingFailed = "Failed to process chunk %d: %v"
	logFmtChunkProcessed        = "Processed chunk %d/%d"
)

// BatchOptions configures a Batch.
type BatchOptions struct {
	DocumentID    string
	Language      string
	PreferOffline *bool
	VoiceName     string
	Workers       int
	// Timeout bounds each chunk request. Zero leaves only the client timeout.
	Timeout time.Duration
}

// Batch synthesizes many chunks through the speech service in parallel. Output files are
// named sequentially (chunk_0001.mp3, chunk_0002.wav, ...) with the extension of the
// audio each chunk came back as.
type Batch struct {
	client *HTTPClient
	opts   BatchOptions
	logger *logger.Logger
}

// NewBatch creates a batch runner.
func NewBatch(client *HTTPClient, opts BatchOptions, log *logger.Logger) *Batch {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Batch{client: client, opts: opts, logger: log}
}

// ProcessChunks synthesizes every chunk of a JSON array file into outputDir.
func (b *Batch) ProcessChunks(ctx context.Context, chunksPath, outputDir string) ([]string, error) {
	if chunksPath == "" {
		return nil, ErrChunksPathEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return b.process(ctx, chunks, outputDir)
}

// ProcessText splits text into chunks of at most limit characters and synthesizes them.
func (b *Batch) ProcessText(ctx context.Context, input string, limit int, outputDir string) ([]string, error) {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	chunks := text.Chunk(text.NewNormalizer().Normalize(input), limit)
	if len(chunks) == 0 {
		return nil, ErrTextEmpty
	}

	return b.process(ctx, chunks, outputDir)
}

// ProcessSingleChunk synthesizes text and writes it to outputBase plus the extension of the
// returned audio. It returns the written path.
func (b *Batch) ProcessSingleChunk(ctx context.Context, chunk, outputBase string) (string, error) {
	if outputBase == "" {
		return "", ErrOutputPathEmpty
	}

	dirErr := os.MkdirAll(filepath.Dir(outputBase), dirPermissions)
	if dirErr != nil {
		return "", fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	audio, err := b.client.GenerateSpeech(ctx, b.opts.DocumentID, SpeechRequest{
		Text:          chunk,
		Language:      b.opts.Language,
		PreferOffline: b.opts.PreferOffline,
		VoiceName:     b.opts.VoiceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate speech: %w", err)
	}

	outputPath := outputBase + path.Ext(audio.Filename)

	writeErr := os.WriteFile(outputPath, audio.Data, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	b.logger.Info(logFmtGeneratedAudio, outputPath, len(audio.Data), audio.ContentType)

	return outputPath, nil
}

func (b *Batch) process(ctx context.Context, chunks []string, outputDir string) ([]string, error) {
	if outputDir == "" {
		return nil, ErrOutputDirEmpty
	}

	dirErr := os.MkdirAll(outputDir, dirPermissions)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	health, healthErr := b.client.HealthCheck(healthCtx)
	if healthErr != nil {
		return nil, fmt.Errorf(errFmtHealthCheckFailed, healthErr)
	}

	b.logger.Info(logFmtServiceHealthy, health.Engines, len(chunks))

	return b.processParallel(ctx, chunks, outputDir)
}

// processParallel runs chunks on a bounded worker pool. A failed chunk does not stop the
// others; every failure is reported in the joined error.
func (b *Batch) processParallel(ctx context.Context, chunks []string, outputDir string) ([]string, error) {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		failures  []error
	)

	outputs := make([]string, len(chunks))
	workerPool := make(chan struct{}, b.opts.Workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, chunkText string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			outputBase := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, index+1))

			written, err := b.ProcessSingleChunk(ctx, chunkText, outputBase)
			if err != nil {
				mutex.Lock()
				failures = append(failures, fmt.Errorf(errFmtChunkFailed, index+1, err))
				mutex.Unlock()

				b.logger.Error(logFmtChunkProcessingFailed, index+1, err)

				return
			}

			outputs[index] = written

			b.logger.Info(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	return outputs, errors.Join(failures...)
}

// readChunksFile reads a JSON array of text chunks.
func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}
