package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"github.com/auraread/speech-service/internal/text"
	"github.com/auraread/speech-service/internal/voice"
)

// EdgeEngineName is the backend name of the Microsoft Edge TTS endpoint.
const EdgeEngineName = "edge_tts"

const (
	// DefaultEdgeVoice is used when no voice matches the request.
	DefaultEdgeVoice = "en-US-AriaNeural"
	edgeVoiceSuffix  = "Neural"
)

// edgeVoices is a curated subset of the Edge neural voices.
var edgeVoices = []voice.Descriptor{
	{ID: "en-US-AriaNeural", DisplayName: "Aria", LanguageCode: "en-us"},
	{ID: "en-US-GuyNeural", DisplayName: "Guy", LanguageCode: "en-us"},
	{ID: "en-GB-SoniaNeural", DisplayName: "Sonia", LanguageCode: "en-gb"},
	{ID: "fr-FR-DeniseNeural", DisplayName: "Denise", LanguageCode: "fr-fr"},
	{ID: "de-DE-KatjaNeural", DisplayName: "Katja", LanguageCode: "de-de"},
	{ID: "es-ES-ElviraNeural", DisplayName: "Elvira", LanguageCode: "es-es"},
	{ID: "it-IT-ElsaNeural", DisplayName: "Elsa", LanguageCode: "it-it"},
	{ID: "pt-BR-FranciscaNeural", DisplayName: "Francisca", LanguageCode: "pt-br"},
	{ID: "ru-RU-SvetlanaNeural", DisplayName: "Svetlana", LanguageCode: "ru-ru"},
	{ID: "ja-JP-NanamiNeural", DisplayName: "Nanami", LanguageCode: "ja-jp"},
	{ID: "zh-CN-XiaoxiaoNeural", DisplayName: "Xiaoxiao", LanguageCode: "zh-cn"},
	{ID: "ko-KR-SunHiNeural", DisplayName: "SunHi", LanguageCode: "ko-kr"},
	{ID: "ar-SA-ZariyahNeural", DisplayName: "Zariyah", LanguageCode: "ar-sa"},
	{ID: "el-GR-AthinaNeural", DisplayName: "Athina", LanguageCode: "el-gr"},
	{ID: "sq-AL-AnilaNeural", DisplayName: "Anila", LanguageCode: "sq-al"},
}

// EdgeSynthesizer turns text into MP3 audio with the named Edge voice.
type EdgeSynthesizer func(voiceName, text string) ([]byte, error)

// EdgeOptions configures the Edge endpoint.
type EdgeOptions struct {
	DefaultVoice string
	// Synthesizer replaces the edge-tts-go client; tests use it to avoid the network.
	Synthesizer EdgeSynthesizer
}

// Edge speaks through the Microsoft Edge read-aloud service.
type Edge struct {
	transport    *Transport
	normalizer   *text.Normalizer
	defaultVoice string
	synthesize   EdgeSynthesizer
}

// NewEdge creates the Edge endpoint. Requests share the transport's rate limiter.
func NewEdge(transport *Transport, opts EdgeOptions) *Edge {
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = DefaultEdgeVoice
	}

	if opts.Synthesizer == nil {
		opts.Synthesizer = edgeSynthesize
	}

	return &Edge{
		transport:    transport,
		normalizer:   text.NewNormalizer(),
		defaultVoice: opts.DefaultVoice,
		synthesize:   opts.Synthesizer,
	}
}

// Name returns EdgeEngineName.
func (e *Edge) Name() string { return EdgeEngineName }

// Probe always succeeds; the endpoint needs no credentials.
func (e *Edge) Probe(_ context.Context) error { return nil }

// Voices returns the curated Edge voices.
func (e *Edge) Voices() []voice.Descriptor { return edgeVoices }

// Fetch speaks text with the voice resolved from voiceID and language.
func (e *Edge) Fetch(ctx context.Context, input, language, voiceID string, w io.Writer) error {
	speakable := e.normalizer.Normalize(input)
	if speakable == "" {
		return ErrNothingToSay
	}

	waitErr := e.transport.wait(ctx)
	if waitErr != nil {
		return waitErr
	}

	audio, err := e.synthesize(e.voiceFor(language, voiceID), speakable)
	if err != nil {
		return fmt.Errorf("edge TTS synthesis failed: %w", err)
	}

	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	_, writeErr := w.Write(audio)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio: %w", writeErr)
	}

	return nil
}

// voiceFor resolves the Edge voice. Unlisted ids that look like Edge voice names are
// passed through unchanged.
func (e *Edge) voiceFor(language, voiceID string) string {
	descriptor, match := voice.Resolve(edgeVoices, voiceID, language)

	switch {
	case match == voice.MatchExact:
		return descriptor.ID
	case strings.HasSuffix(voiceID, edgeVoiceSuffix):
		return voiceID
	case match != voice.MatchNone:
		return descriptor.ID
	default:
		return e.defaultVoice
	}
}

func edgeSynthesize(voiceName, input string) ([]byte, error) {
	communicate, err := edge_tts.New(voiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Edge TTS communicator: %w", err)
	}
	defer communicate.Close()

	return communicate.Output(input)
}
