// Package documents provides document language directories: the stored language of a
// document, used when a speech request does not name one.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/voice"
)

// Static serves document languages from a fixed map.
type Static struct {
	languages    map[string]string
	requireKnown bool
}

// NewStatic creates a static directory. With requireKnown unset an unknown document has no
// stored language instead of being reported as missing.
func NewStatic(languages map[string]string, requireKnown bool) *Static {
	copied := make(map[string]string, len(languages))
	for id, language := range languages {
		copied[id] = voice.NormalizeLanguage(language)
	}

	return &Static{languages: copied, requireKnown: requireKnown}
}

// Language returns the stored language of documentID.
func (s *Static) Language(_ context.Context, documentID string) (string, error) {
	language, ok := s.languages[documentID]
	if !ok && s.requireKnown {
		return "", fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}

	return language, nil
}

// KV serves document languages from a NATS JetStream key-value bucket.
type KV struct {
	kv     nats.KeyValue
	bucket string
}

// NewKV binds to the bucket, creating it when it does not exist yet.
func NewKV(jetstreamContext nats.JetStreamContext, bucket string) (*KV, error) {
	kv, err := jetstreamContext.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Stored language of each document.",
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket '%s': %w", bucket, err)
	}

	return &KV{kv: kv, bucket: bucket}, nil
}

// Language returns the stored language of documentID or core.ErrDocumentNotFound.
func (k *KV) Language(_ context.Context, documentID string) (string, error) {
	entry, err := k.kv.Get(documentID)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrInvalidKey) {
			return "", fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
		}

		return "", fmt.Errorf("failed to read document '%s' from bucket '%s': %w", documentID, k.bucket, err)
	}

	return voice.NormalizeLanguage(string(entry.Value())), nil
}

// SetLanguage stores the language of documentID.
func (k *KV) SetLanguage(_ context.Context, documentID, language string) error {
	_, err := k.kv.Put(documentID, []byte(strings.TrimSpace(language)))
	if err != nil {
		return fmt.Errorf("failed to store document '%s' in bucket '%s': %w", documentID, k.bucket, err)
	}

	return nil
}

// Seed stores every entry of languages.
func (k *KV) Seed(ctx context.Context, languages map[string]string) error {
	for documentID, language := range languages {
		seedErr := k.SetLanguage(ctx, documentID, language)
		if seedErr != nil {
			return seedErr
		}
	}

	return nil
}
