// Package httpapi exposes the speech orchestrator over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/speech"
	"github.com/auraread/speech-service/internal/voice"
)

// Route paths.
const (
	PathSpeech = "/api/documents/:id/tts"
	PathVoices = "/api/documents/available_voices"
	PathHealth = "/health"
)

// Synthesizer is the orchestrator surface used by the handlers.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (*speech.Result, error)
	ListVoices(ctx context.Context) map[string][]voice.Descriptor
	Engines() []string
}

// Options configures the router.
type Options struct {
	// AuthTokens lists the accepted API tokens. Authentication is off when it is empty.
	AuthTokens      []string
	DefaultLanguage string
	// Mode is a gin mode ("debug", "release", "test"). Empty means release.
	Mode string
}

// Handlers serves the speech endpoints.
type Handlers struct {
	synthesizer Synthesizer
	documents   core.DocumentDirectory
	language    string
	log         *logger.Logger
}

// NewRouter builds the gin engine with logging, recovery and token authentication.
func NewRouter(
	synthesizer Synthesizer,
	documents core.DocumentDirectory,
	opts Options,
	log *logger.Logger,
) *gin.Engine {
	mode := opts.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}

	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(log))

	language := voice.NormalizeLanguage(opts.DefaultLanguage)
	if language == "" {
		language = voice.DefaultLanguage
	}

	handlers := &Handlers{
		synthesizer: synthesizer,
		documents:   documents,
		language:    language,
		log:         log,
	}

	engine.GET(PathHealth, handlers.Health)

	api := engine.Group("")
	api.Use(authMiddleware(opts.AuthTokens, log))
	api.GET(PathVoices, handlers.Voices)
	api.POST(PathSpeech, handlers.Speech)

	return engine
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info(
			"[HTTP] %s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// authMiddleware accepts "Authorization: Token <t>" and "Authorization: Bearer <t>".
func authMiddleware(tokens []string, log *logger.Logger) gin.HandlerFunc {
	if len(tokens) == 0 {
		log.Warn("No API tokens configured; speech endpoints are unauthenticated")

		return func(c *gin.Context) { c.Next() }
	}

	accepted := slices.Clone(tokens)

	return func(c *gin.Context) {
		token := tokenFromHeader(c.GetHeader("Authorization"))
		if token == "" || !slices.Contains(accepted, token) {
			log.Warn("Rejected request to %s: invalid or missing token", c.Request.URL.Path)
			abortWithError(c, http.StatusUnauthorized, messageUnauthorized)

			return
		}

		c.Next()
	}
}

func tokenFromHeader(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return ""
	}

	switch strings.ToLower(scheme) {
	case "token", "bearer":
		return strings.TrimSpace(token)
	default:
		return ""
	}
}
