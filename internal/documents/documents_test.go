package documents_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/documents"
)

func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()

	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestStatic_Language(t *testing.T) {
	t.Parallel()

	strict := documents.NewStatic(map[string]string{"42": "EN_us"}, true)

	language, err := strict.Language(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "en-us", language)

	_, missingErr := strict.Language(context.Background(), "7")
	require.ErrorIs(t, missingErr, core.ErrDocumentNotFound)

	lenient := documents.NewStatic(nil, false)

	language, err = lenient.Language(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, language)
}

func TestKV_SetAndGet(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)

	directory, err := documents.NewKV(jetstreamContext, "DOCUMENT_LANGUAGES")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, directory.SetLanguage(ctx, "doc-1", "fr_FR"))

	language, err := directory.Language(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "fr-fr", language)

	_, missingErr := directory.Language(ctx, "doc-2")
	require.ErrorIs(t, missingErr, core.ErrDocumentNotFound)

	_, invalidErr := directory.Language(ctx, "not a valid key!")
	require.ErrorIs(t, invalidErr, core.ErrDocumentNotFound)
}

func TestKV_BindsToExistingBucketAndSeeds(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)
	ctx := context.Background()

	first, err := documents.NewKV(jetstreamContext, "DOCS")
	require.NoError(t, err)
	require.NoError(t, first.Seed(ctx, map[string]string{"a": "el", "b": "sq"}))

	second, err := documents.NewKV(jetstreamContext, "DOCS")
	require.NoError(t, err)

	language, err := second.Language(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "sq", language)
}
