package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/auraread/speech-service/internal/text"
	"github.com/auraread/speech-service/internal/voice"
)

// GoogleEngineName is the backend name of the Google Translate endpoint.
const GoogleEngineName = "google_translate"

// Google Translate TTS request parameters.
const (
	DefaultGoogleURLFormat  = "https://translate.google.%s/translate_tts"
	DefaultGoogleChunkLimit = 200
	googleClient            = "tw-ob"
	googleEncoding          = "UTF-8"
	googleDisplayName       = "Google Translate"
	errFmtGoogleTLD         = "tld %s: %w"
)

// DefaultGoogleTLDs are the Google hosts tried in order; a throttled host moves on to the next.
var DefaultGoogleTLDs = []string{"com", "ca", "co.uk", "com.au", "co.in", "ie", "co.za"}

// ErrNothingToSay is returned when normalization leaves no text.
var ErrNothingToSay = errors.New("no speakable text after normalization")

// googleLanguageOverrides lists the codes Google expects with a region.
var googleLanguageOverrides = map[string]string{
	"zh-cn": "zh-CN",
	"zh-tw": "zh-TW",
	"zh":    "zh-CN",
	"pt-br": "pt-BR",
}

var googleLanguages = []string{"en", "fr", "de", "es", "it", "pt", "ru", "ja", "zh-cn", "zh-tw", "ko", "ar", "sq", "el"}

// GoogleOptions configures the Google Translate endpoint.
type GoogleOptions struct {
	// URLFormat receives the TLD through a single %s verb.
	URLFormat  string
	TLDs       []string
	ChunkLimit int
}

// Google speaks through the Google Translate TTS endpoint.
type Google struct {
	transport  *Transport
	normalizer *text.Normalizer
	urlFormat  string
	tlds       []string
	chunkLimit int
}

// NewGoogle creates the Google Translate endpoint.
func NewGoogle(transport *Transport, opts GoogleOptions) *Google {
	if opts.URLFormat == "" {
		opts.URLFormat = DefaultGoogleURLFormat
	}

	if len(opts.TLDs) == 0 {
		opts.TLDs = DefaultGoogleTLDs
	}

	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = DefaultGoogleChunkLimit
	}

	return &Google{
		transport:  transport,
		normalizer: text.NewNormalizer(),
		urlFormat:  opts.URLFormat,
		tlds:       opts.TLDs,
		chunkLimit: opts.ChunkLimit,
	}
}

// Name returns GoogleEngineName.
func (g *Google) Name() string { return GoogleEngineName }

// Probe always succeeds; the endpoint needs no credentials.
func (g *Google) Probe(_ context.Context) error { return nil }

// Voices lists one voice per supported language.
func (g *Google) Voices() []voice.Descriptor {
	voices := make([]voice.Descriptor, 0, len(googleLanguages))
	for _, language := range googleLanguages {
		voices = append(voices, voice.Descriptor{
			ID:           "google-" + language,
			DisplayName:  googleDisplayName,
			LanguageCode: language,
		})
	}

	return voices
}

// Fetch speaks text chunk by chunk and writes the concatenated MP3 once every chunk succeeded.
// Each TLD is tried in order; the errors of all failed TLDs are joined.
func (g *Google) Fetch(ctx context.Context, input, language, _ string, w io.Writer) error {
	chunks := text.Chunk(g.normalizer.Normalize(input), g.chunkLimit)
	if len(chunks) == 0 {
		return ErrNothingToSay
	}

	tl := GoogleLanguage(language)
	failures := make([]error, 0, len(g.tlds))

	for _, tld := range g.tlds {
		audio, err := g.fetchAll(ctx, tld, tl, chunks)
		if err == nil {
			_, writeErr := w.Write(audio)
			if writeErr != nil {
				return fmt.Errorf("failed to write audio: %w", writeErr)
			}

			return nil
		}

		failures = append(failures, fmt.Errorf(errFmtGoogleTLD, tld, err))

		if ctx.Err() != nil {
			break
		}
	}

	return errors.Join(failures...)
}

func (g *Google) fetchAll(ctx context.Context, tld, tl string, chunks []string) ([]byte, error) {
	var audio bytes.Buffer

	for index, chunk := range chunks {
		query := url.Values{}
		query.Set("ie", googleEncoding)
		query.Set("client", googleClient)
		query.Set("tl", tl)
		query.Set("q", chunk)
		query.Set("total", strconv.Itoa(len(chunks)))
		query.Set("idx", strconv.Itoa(index))
		query.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

		body, err := g.transport.Get(ctx, fmt.Sprintf(g.urlFormat, tld)+"?"+query.Encode())
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", index+1, len(chunks), err)
		}

		audio.Write(body)
	}

	return audio.Bytes(), nil
}

// GoogleLanguage maps a normalized language code to the "tl" parameter.
func GoogleLanguage(language string) string {
	normalized := voice.NormalizeLanguage(language)
	if override, ok := googleLanguageOverrides[normalized]; ok {
		return override
	}

	primary := voice.PrimarySubtag(normalized)
	if primary == "" {
		return voice.DefaultLanguage
	}

	return primary
}
