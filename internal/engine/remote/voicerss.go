package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/auraread/speech-service/internal/text"
	"github.com/auraread/speech-service/internal/voice"
)

// VoiceRSSEngineName is the backend name of the VoiceRSS endpoint.
const VoiceRSSEngineName = "voicerss"

// VoiceRSS request parameters.
const (
	DefaultVoiceRSSURL = "https://api.voicerss.org/"
	voiceRSSCodec      = "mp3"
	voiceRSSFormat     = "44khz_16bit_stereo"
	voiceRSSRate       = "0"
	voiceRSSErrorMark  = "ERROR"
)

var (
	// ErrMissingAPIKey is returned by Probe when no VoiceRSS key is configured.
	ErrMissingAPIKey = errors.New("VoiceRSS API key is not configured")
	// ErrServiceRejected is returned when VoiceRSS answers 200 with an error message.
	ErrServiceRejected = errors.New("VoiceRSS rejected the request")
)

// voiceRSSVoices is the curated VoiceRSS voice list.
var voiceRSSVoices = []voice.Descriptor{
	{ID: "Linda", DisplayName: "Linda", LanguageCode: "en-us"},
	{ID: "John", DisplayName: "John", LanguageCode: "en-us"},
	{ID: "Alice", DisplayName: "Alice", LanguageCode: "en-gb"},
	{ID: "Harry", DisplayName: "Harry", LanguageCode: "en-gb"},
	{ID: "Bette", DisplayName: "Bette", LanguageCode: "fr-fr"},
	{ID: "Axel", DisplayName: "Axel", LanguageCode: "fr-fr"},
	{ID: "Hanna", DisplayName: "Hanna", LanguageCode: "de-de"},
	{ID: "Jonas", DisplayName: "Jonas", LanguageCode: "de-de"},
	{ID: "Camila", DisplayName: "Camila", LanguageCode: "es-es"},
	{ID: "Diego", DisplayName: "Diego", LanguageCode: "es-es"},
	{ID: "Bria", DisplayName: "Bria", LanguageCode: "it-it"},
	{ID: "Leonor", DisplayName: "Leonor", LanguageCode: "pt-pt"},
}

// VoiceRSSOptions configures the VoiceRSS endpoint.
type VoiceRSSOptions struct {
	BaseURL string
	APIKey  string
}

// VoiceRSS speaks through the VoiceRSS HTTP API.
type VoiceRSS struct {
	transport  *Transport
	normalizer *text.Normalizer
	baseURL    string
	apiKey     string
}

// NewVoiceRSS creates the VoiceRSS endpoint.
func NewVoiceRSS(transport *Transport, opts VoiceRSSOptions) *VoiceRSS {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultVoiceRSSURL
	}

	return &VoiceRSS{
		transport:  transport,
		normalizer: text.NewNormalizer(),
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
	}
}

// Name returns VoiceRSSEngineName.
func (v *VoiceRSS) Name() string { return VoiceRSSEngineName }

// Probe fails when the API key is missing.
func (v *VoiceRSS) Probe(_ context.Context) error {
	if v.apiKey == "" {
		return ErrMissingAPIKey
	}

	return nil
}

// Voices returns the curated VoiceRSS voices.
func (v *VoiceRSS) Voices() []voice.Descriptor {
	return voiceRSSVoices
}

// Fetch requests MP3 audio for text. A known voice id selects that voice and its language;
// otherwise the language is mapped to its regional form ("en" becomes "en-us").
func (v *VoiceRSS) Fetch(ctx context.Context, input, language, voiceID string, w io.Writer) error {
	speakable := v.normalizer.Normalize(input)
	if speakable == "" {
		return ErrNothingToSay
	}

	query := url.Values{}
	query.Set("key", v.apiKey)
	query.Set("src", speakable)
	query.Set("hl", voice.RegionalCode(language))
	query.Set("r", voiceRSSRate)
	query.Set("c", voiceRSSCodec)
	query.Set("f", voiceRSSFormat)
	query.Set("ssml", "false")
	query.Set("b64", "false")

	if voiceID != "" {
		descriptor, match := voice.Resolve(voiceRSSVoices, voiceID, "")
		if match != voice.MatchNone {
			query.Set("v", descriptor.ID)
			query.Set("hl", descriptor.LanguageCode)
		}
	}

	body, err := v.transport.Get(ctx, v.baseURL+"?"+query.Encode())
	if err != nil {
		return err
	}

	if bytes.HasPrefix(body, []byte(voiceRSSErrorMark)) {
		return fmt.Errorf("%w: %s", ErrServiceRejected, strings.TrimSpace(string(body)))
	}

	_, writeErr := w.Write(body)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio: %w", writeErr)
	}

	return nil
}
