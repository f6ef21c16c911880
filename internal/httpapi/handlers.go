package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/auraread/speech-service/internal/core"
	"github.com/auraread/speech-service/internal/speech"
)

const (
	messageUnauthorized = "Invalid or missing authentication token"
	messageNoText       = "No text provided"
	messageBadPayload   = "Invalid request payload"
	messageNotFound     = "Document not found"
	messageRateLimited  = "Speech service rate limit reached. Please try again later or with smaller text."
	messageCancelled    = "Speech generation was cancelled"

	statusHealthy = "healthy"
)

// speechPayload is the body of a speech request, JSON or form encoded.
type speechPayload struct {
	Text          string       `form:"text"       json:"text"`
	Language      string       `form:"language"   json:"language"`
	PreferOffline optionalBool `form:"-"          json:"prefer_offline"`
	VoiceName     string       `form:"voice_name" json:"voice_name"`
	VoiceID       string       `form:"voice_id"   json:"voice_id"`
}

func (p speechPayload) voice() string {
	if strings.TrimSpace(p.VoiceID) != "" {
		return p.VoiceID
	}

	return p.VoiceName
}

// optionalBool accepts a JSON boolean or a "true"/"false" string.
type optionalBool struct {
	set   bool
	value bool
}

func (b *optionalBool) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("invalid prefer_offline: %w", err)
	}

	switch typed := raw.(type) {
	case nil:
		*b = optionalBool{}
	case bool:
		*b = optionalBool{set: true, value: typed}
	case string:
		*b = parseFlag(typed)
	default:
		return fmt.Errorf("invalid prefer_offline value %s", string(data))
	}

	return nil
}

// parseFlag treats only "true" (any case) as true. An empty string leaves the flag unset.
func parseFlag(raw string) optionalBool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return optionalBool{}
	}

	return optionalBool{set: true, value: strings.EqualFold(trimmed, "true")}
}

func (b optionalBool) or(fallback bool) bool {
	if !b.set {
		return fallback
	}

	return b.value
}

// Health reports the engines the orchestrator can use.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  statusHealthy,
		"engines": h.synthesizer.Engines(),
	})
}

// Voices lists the voices of every engine keyed by engine name.
func (h *Handlers) Voices(c *gin.Context) {
	c.JSON(http.StatusOK, h.synthesizer.ListVoices(c.Request.Context()))
}

// Speech synthesizes the posted text and streams the audio back as an attachment.
func (h *Handlers) Speech(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := c.Param("id")

	documentLanguage, err := h.documents.Language(ctx, documentID)
	if err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			abortWithError(c, http.StatusNotFound, messageNotFound)

			return
		}

		h.log.Error("Failed to look up document %s: %v", documentID, err)
		abortWithError(c, http.StatusInternalServerError, "Error looking up document")

		return
	}

	payload, err := bindPayload(c)
	if err != nil {
		h.log.Warn("Invalid speech payload for document %s: %v", documentID, err)
		abortWithError(c, http.StatusBadRequest, messageBadPayload)

		return
	}

	language := payload.Language
	if strings.TrimSpace(language) == "" {
		language = documentLanguage
	}

	if strings.TrimSpace(language) == "" {
		language = h.language
	}

	req, err := speech.NewRequest(payload.Text, language, payload.PreferOffline.or(true), payload.voice())
	if err != nil {
		h.respondFailure(c, documentID, err)

		return
	}

	result, err := h.synthesizer.Synthesize(ctx, req)
	if err != nil {
		h.respondFailure(c, documentID, err)

		return
	}

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", result.Filename()),
	}

	consumeErr := result.Consume(func(reader io.Reader) error {
		c.DataFromReader(http.StatusOK, result.Size(), result.ContentType(), reader, extraHeaders)

		return nil
	})
	if consumeErr != nil {
		h.log.Warn("Failed to stream audio for document %s: %v", documentID, consumeErr)
	}
}

// bindPayload decodes JSON bodies and falls back to form decoding for everything else.
func bindPayload(c *gin.Context) (speechPayload, error) {
	var payload speechPayload

	if c.ContentType() == binding.MIMEJSON {
		err := c.ShouldBindJSON(&payload)
		if err != nil {
			return payload, fmt.Errorf("failed to decode JSON payload: %w", err)
		}

		return payload, nil
	}

	err := c.ShouldBind(&payload)
	if err != nil {
		return payload, fmt.Errorf("failed to decode form payload: %w", err)
	}

	if raw, ok := c.GetPostForm("prefer_offline"); ok {
		payload.PreferOffline = parseFlag(raw)
	}

	return payload, nil
}

// respondFailure maps an orchestrator error to its status code. Messages name the failed
// engines but never carry engine output or file paths.
func (h *Handlers) respondFailure(c *gin.Context, documentID string, err error) {
	switch speech.Classify(err) {
	case speech.KindValidation:
		abortWithError(c, http.StatusBadRequest, messageNoText)
	case speech.KindRateLimited:
		h.log.Warn("Speech for document %s rate limited: %v", documentID, err)
		abortWithError(c, http.StatusTooManyRequests, messageRateLimited)
	case speech.KindEngineFailure:
		h.log.Error("Speech for document %s failed: %v", documentID, err)

		var allFailed *speech.AllEnginesFailedError

		message := "Error generating speech: no TTS engine is available"
		if errors.As(err, &allFailed) && len(allFailed.Attempts) > 0 {
			message = "Error generating speech: all TTS engines failed (" +
				strings.Join(allFailed.Engines(), ", ") + ")"
		}

		abortWithError(c, http.StatusInternalServerError, message)
	case speech.KindCancelled:
		h.log.Warn("Speech for document %s cancelled: %v", documentID, err)
		abortWithError(c, http.StatusInternalServerError, messageCancelled)
	case speech.KindUnknown:
		h.log.Error("Speech for document %s failed: %v", documentID, err)
		abortWithError(c, http.StatusInternalServerError, "Error generating speech")
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
