// Package config provides the configuration structure for the speech service.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Remote engine names accepted in speech.remote.engines.
const (
	EngineGoogle   = "google_translate"
	EngineVoiceRSS = "voicerss"
	EngineEdge     = "edge_tts"
)

// Document directory sources.
const (
	DocumentsSourceNATS   = "nats"
	DocumentsSourceStatic = "static"
)

const (
	envVoiceRSSAPIKey = "VOICERSS_API_KEY"
	envAuthToken      = "SPEECH_AUTH_TOKEN"
	minSAPIRate       = -10
	maxSAPIRate       = 10
)

// Defaults applied by ApplyDefaults.
const (
	DefaultListenAddress          = ":8080"
	DefaultLanguage               = "en"
	DefaultBackendTimeoutSeconds  = 60
	DefaultShutdownTimeoutSeconds = 10
	DefaultHandleTimeoutSeconds   = 120
	DefaultRequestsPerMinute      = 30
	DefaultBurst                  = 3
	DefaultHTTPTimeoutSeconds     = 30
	DefaultLocalRate              = 150
	DefaultBaseLogsDir            = "logs"
	DefaultAudioBucket            = "AUDIO_FILES"
	DefaultDocumentsBucket        = "DOCUMENT_LANGUAGES"
	DefaultTextProcessedSubject   = "text.processed"
)

var (
	// ErrListenAddressEmpty indicates that the HTTP listen address is empty.
	ErrListenAddressEmpty = errors.New("server.listen_address cannot be empty")
	// ErrNegativeTimeout indicates that a timeout is negative.
	ErrNegativeTimeout = errors.New("timeouts must be non-negative")
	// ErrUnknownEngine indicates an unknown remote engine name.
	ErrUnknownEngine = errors.New("unknown remote engine")
	// ErrSAPIRateRange indicates that the SAPI rate is outside [-10, 10].
	ErrSAPIRateRange = errors.New("speech.native.sapi_rate must be between -10 and 10")
	// ErrUnknownDocumentsSource indicates an unknown document directory source.
	ErrUnknownDocumentsSource = errors.New("unknown documents.source")
	// ErrNATSURLEmpty indicates that NATS is required but not configured.
	ErrNATSURLEmpty = errors.New("nats.url is required by the worker and the nats document directory")
)

// DefaultRemoteEngines is the remote engine order used when none is configured.
var DefaultRemoteEngines = []string{EngineGoogle, EngineVoiceRSS, EngineEdge}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	ListenAddress          string   `toml:"listen_address"`
	AuthTokens             []string `toml:"auth_tokens"`
	Mode                   string   `toml:"mode"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

// NativeConfig configures the operating-system voices.
type NativeConfig struct {
	Disabled   bool   `toml:"disabled"`
	PowerShell string `toml:"powershell"`
	Say        string `toml:"say"`
	SAPIRate   int    `toml:"sapi_rate"`
	SayRate    int    `toml:"say_rate"`
}

// LocalConfig configures the offline espeak engine.
type LocalConfig struct {
	Disabled bool     `toml:"disabled"`
	Programs []string `toml:"programs"`
	Rate     int      `toml:"rate"`
}

// RemoteConfig configures the third-party speech services.
type RemoteConfig struct {
	Engines            []string `toml:"engines"`
	RequestsPerMinute  int      `toml:"requests_per_minute"`
	Burst              int      `toml:"burst"`
	HTTPTimeoutSeconds int      `toml:"http_timeout_seconds"`
	GoogleURLFormat    string   `toml:"google_url_format"`
	GoogleTLDs         []string `toml:"google_tlds"`
	GoogleChunkLimit   int      `toml:"google_chunk_limit"`
	VoiceRSSURL        string   `toml:"voicerss_url"`
	VoiceRSSAPIKey     string   `toml:"voicerss_api_key"`
	EdgeVoice          string   `toml:"edge_voice"`
}

// SpeechConfig holds the orchestrator and engine settings.
type SpeechConfig struct {
	DefaultLanguage       string       `toml:"default_language"`
	BackendTimeoutSeconds int          `toml:"backend_timeout_seconds"`
	TempDir               string       `toml:"temp_dir"`
	Native                NativeConfig `toml:"native"`
	Local                 LocalConfig  `toml:"local"`
	Remote                RemoteConfig `toml:"remote"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	DocumentsBucket          string `toml:"documents_bucket"`
}

// WorkerConfig configures the NATS job worker.
type WorkerConfig struct {
	Enabled              bool `toml:"enabled"`
	PreferOnline         bool `toml:"prefer_online"`
	HandleTimeoutSeconds int  `toml:"handle_timeout_seconds"`
}

// DocumentsConfig selects the document language directory.
type DocumentsConfig struct {
	Source       string            `toml:"source"`
	RequireKnown bool              `toml:"require_known"`
	Languages    map[string]string `toml:"languages"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Speech    SpeechConfig    `toml:"speech"`
	NATS      NATSConfig      `toml:"nats"`
	Worker    WorkerConfig    `toml:"worker"`
	Documents DocumentsConfig `toml:"documents"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the project configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304 -- the path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvironment()
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyEnvironment fills secrets from the environment when the file leaves them empty.
func (c *Config) ApplyEnvironment() {
	if c.Speech.Remote.VoiceRSSAPIKey == "" {
		c.Speech.Remote.VoiceRSSAPIKey = os.Getenv(envVoiceRSSAPIKey)
	}

	if token := os.Getenv(envAuthToken); token != "" && !slices.Contains(c.Server.AuthTokens, token) {
		c.Server.AuthTokens = append(c.Server.AuthTokens, token)
	}
}

// ApplyDefaults sets every unset value to its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.ListenAddress, DefaultListenAddress)
	setInt(&c.Server.ShutdownTimeoutSeconds, DefaultShutdownTimeoutSeconds)

	setString(&c.Speech.DefaultLanguage, DefaultLanguage)
	setInt(&c.Speech.BackendTimeoutSeconds, DefaultBackendTimeoutSeconds)
	setInt(&c.Speech.Local.Rate, DefaultLocalRate)

	if len(c.Speech.Remote.Engines) == 0 {
		c.Speech.Remote.Engines = slices.Clone(DefaultRemoteEngines)
	}

	setInt(&c.Speech.Remote.RequestsPerMinute, DefaultRequestsPerMinute)
	setInt(&c.Speech.Remote.Burst, DefaultBurst)
	setInt(&c.Speech.Remote.HTTPTimeoutSeconds, DefaultHTTPTimeoutSeconds)

	setString(&c.NATS.TextProcessedSubject, DefaultTextProcessedSubject)
	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
	setString(&c.NATS.DocumentsBucket, DefaultDocumentsBucket)
	setInt(&c.Worker.HandleTimeoutSeconds, DefaultHandleTimeoutSeconds)

	setString(&c.Documents.Source, DocumentsSourceStatic)
	setString(&c.Paths.BaseLogsDir, DefaultBaseLogsDir)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return ErrListenAddressEmpty
	}

	if c.Speech.BackendTimeoutSeconds < 0 || c.Server.ShutdownTimeoutSeconds < 0 ||
		c.Worker.HandleTimeoutSeconds < 0 || c.Speech.Remote.HTTPTimeoutSeconds < 0 {
		return ErrNegativeTimeout
	}

	if c.Speech.Native.SAPIRate < minSAPIRate || c.Speech.Native.SAPIRate > maxSAPIRate {
		return fmt.Errorf("%w: got %d", ErrSAPIRateRange, c.Speech.Native.SAPIRate)
	}

	for _, engine := range c.Speech.Remote.Engines {
		if !slices.Contains(DefaultRemoteEngines, engine) {
			return fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
		}
	}

	switch c.Documents.Source {
	case DocumentsSourceNATS, DocumentsSourceStatic:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDocumentsSource, c.Documents.Source)
	}

	if c.NATS.URL == "" && (c.Worker.Enabled || c.Documents.Source == DocumentsSourceNATS) {
		return ErrNATSURLEmpty
	}

	return nil
}

// BackendTimeout is the time budget of a single engine attempt.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Speech.BackendTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds the graceful HTTP shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// HandleTimeout bounds the processing of one worker job.
func (c *Config) HandleTimeout() time.Duration {
	return time.Duration(c.Worker.HandleTimeoutSeconds) * time.Second
}

// HTTPTimeout bounds a single remote HTTP request.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Speech.Remote.HTTPTimeoutSeconds) * time.Second
}

func setString(target *string, fallback string) {
	if *target == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}
