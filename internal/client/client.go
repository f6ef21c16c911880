// Package client provides an HTTP client for the speech service and a batch runner that
// synthesizes many text chunks in parallel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auraread/speech-service/internal/voice"
)

// API endpoints and paths.
const (
	apiSpeechFormat = "/api/documents/%s/tts"
	apiVoices       = "/api/documents/available_voices"
	apiHealth       = "/health"
)

// HTTP headers.
const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerAuthorization      = "Authorization"
	contentTypeJSON          = "application/json"
	contentTypeMPEG          = "audio/mpeg"
	defaultFilename          = "speech.mp3"
	statusHealthy            = "healthy"
)

var (
	// ErrTextEmpty indicates that a request carries no text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrDocumentIDEmpty indicates that a request names no document.
	ErrDocumentIDEmpty = errors.New("document id cannot be empty")
	// ErrRateLimited indicates that the service answered 429.
	ErrRateLimited = errors.New("speech service rate limited the request")
	// ErrEmptyAudio indicates a successful response without audio.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrUnhealthy indicates that the health endpoint reported a non-healthy status.
	ErrUnhealthy = errors.New("speech service is not healthy")
)

// HTTPClient talks to the speech service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// SpeechRequest is the JSON payload of a speech request.
type SpeechRequest struct {
	Text          string `json:"text"`
	Language      string `json:"language,omitempty"`
	PreferOffline *bool  `json:"prefer_offline,omitempty"`
	VoiceName     string `json:"voice_name,omitempty"`
}

// Audio is a synthesized response.
type Audio struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Health is the body of the health endpoint.
type Health struct {
	Status  string   `json:"status"`
	Engines []string `json:"engines"`
}

// ServiceError is a non-OK response from the service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("speech service error (%d %s): %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Unwrap exposes ErrRateLimited for 429 responses.
func (e *ServiceError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	return nil
}

// NewHTTPClient creates a client. An empty token sends no Authorization header.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech synthesizes text for a document and returns the audio with its
// content type and suggested file name.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, documentID string, req SpeechRequest) (*Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if documentID == "" {
		return nil, ErrDocumentIDEmpty
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + fmt.Sprintf(apiSpeechFormat, url.PathEscape(documentID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType == "" {
		contentType = contentTypeMPEG
	}

	return &Audio{
		Data:        audioData,
		ContentType: contentType,
		Filename:    attachmentFilename(resp.Header.Get(headerContentDisposition)),
	}, nil
}

// ListVoices returns the voices of every engine keyed by engine name.
func (c *HTTPClient) ListVoices(ctx context.Context) (map[string][]voice.Descriptor, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var catalog map[string][]voice.Descriptor

	err = json.NewDecoder(resp.Body).Decode(&catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}

	return catalog, nil
}

// HealthCheck verifies that the service is running and reports its engines.
func (c *HTTPClient) HealthCheck(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var health Health

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	if health.Status != statusHealthy {
		return &health, fmt.Errorf("%w: status %q", ErrUnhealthy, health.Status)
	}

	return &health, nil
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set(headerAuthorization, "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

// parseErrorResponse decodes the {"error": ...} body, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp struct {
		Error string `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Error != "" {
		message = errorResp.Error
	}

	return &ServiceError{StatusCode: resp.StatusCode, Message: message}
}

func attachmentFilename(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return defaultFilename
	}

	return params["filename"]
}
