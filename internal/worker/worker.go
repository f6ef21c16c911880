// Package worker provides a NATS worker that turns processed text into speech.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/speech"
	"github.com/auraread/speech-service/internal/text"
)

const defaultHandleTimeout = 120 * time.Second

var (
	// ErrSubjectEmpty indicates that the worker has no subject to listen on.
	ErrSubjectEmpty = errors.New("worker subject cannot be empty")
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("event text key cannot be empty")
)

// Synthesizer produces audio for a validated request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (*speech.Result, error)
}

// Options configures a NatsWorker.
type Options struct {
	// Subject carries TextProcessedEvent messages.
	Subject string
	// ReplySubject, when set, also receives every AudioChunkCreatedEvent.
	ReplySubject    string
	DefaultLanguage string
	PreferOffline   bool
	HandleTimeout   time.Duration
}

// NatsWorker listens for processed text on a NATS subject and synthesizes it.
type NatsWorker struct {
	natsConnection *nats.Conn
	opts           Options
	store          core.ObjectStore
	synthesizer    Synthesizer
	normalizer     *text.Normalizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	opts Options,
	store core.ObjectStore,
	synthesizer Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if opts.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		opts:           opts,
		store:          store,
		synthesizer:    synthesizer,
		normalizer:     text.NewNormalizer(),
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.opts.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	w.log.Info("Speech worker listening on subject: %s", w.opts.Subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.HandleTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process speech job for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesizes it and uploads the audio under a fresh key.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	req, err := speech.NewRequest(
		w.normalizer.Normalize(string(textData)), w.opts.DefaultLanguage, w.opts.PreferOffline, event.Voice,
	)
	if err != nil {
		return "", fmt.Errorf("invalid text for key '%s': %w", event.TextKey, err)
	}

	result, err := w.synthesizer.Synthesize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize speech: %w", err)
	}

	audioKey := uuid.NewString() + path.Ext(result.Filename())

	audioData, err := result.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Workflow %s page %d synthesized by %s into %s",
		event.Header.WorkflowID, event.PageNumber, result.Engine(), audioKey)

	return audioKey, nil
}

// publishReplyEvent responds to the request and publishes to the reply subject when configured.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(replyData)
		if err != nil {
			return fmt.Errorf("failed to respond with reply event: %w", err)
		}
	}

	if w.opts.ReplySubject != "" {
		err = w.natsConnection.Publish(w.opts.ReplySubject, replyData)
		if err != nil {
			return fmt.Errorf("failed to publish reply event to %s: %w", w.opts.ReplySubject, err)
		}
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
