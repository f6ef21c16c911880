package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/auraread/speech-service/internal/speech"
)

// Defaults for the shared transport.
const (
	DefaultRequestsPerMinute = 30
	DefaultBurst             = 3
	DefaultHTTPTimeout       = 30 * time.Second
	defaultUserAgent         = "Mozilla/5.0 (compatible; auraread-speech/1.0)"
	maxErrorBodyBytes        = 256
	secondsPerMinute         = 60
)

const (
	headerUserAgent = "User-Agent"
	errFmtStatus    = "%w: %s returned %s: %s"
	errFmtRateLimit = "%w: %s returned %s"
	errFmtRequest   = "request to %s failed: %w"
)

var (
	// ErrUnexpectedStatus is returned for any non-200 answer other than 429.
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrEmptyAudio is returned when a service answers 200 without a body.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// NewLimiter builds the client-side limiter shared by all remote endpoints.
// A non-positive rate disables limiting.
func NewLimiter(requestsPerMinute, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/secondsPerMinute), burst)
}

// Transport performs rate-limited GET requests against speech services.
type Transport struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewTransport creates a transport. A nil client gets DefaultHTTPTimeout; a nil limiter
// disables limiting.
func NewTransport(client *http.Client, limiter *rate.Limiter) *Transport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Transport{client: client, limiter: limiter, userAgent: defaultUserAgent}
}

// wait blocks until the limiter admits one more request.
func (t *Transport) wait(ctx context.Context) error {
	waitErr := t.limiter.Wait(ctx)
	if waitErr != nil {
		return fmt.Errorf("rate limiter: %w", waitErr)
	}

	return nil
}

// Get fetches rawURL and returns the body of a 200 response.
func (t *Transport) Get(ctx context.Context, rawURL string) ([]byte, error) {
	waitErr := t.wait(ctx)
	if waitErr != nil {
		return nil, waitErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerUserAgent, t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the text and API keys; keep it out of error messages.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, fmt.Errorf(errFmtRequest, req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf(errFmtRateLimit, speech.ErrRateLimited, req.URL.Host, resp.Status)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, fmt.Errorf(errFmtStatus, ErrUnexpectedStatus, req.URL.Host, resp.Status,
			strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(body) == 0 {
		return nil, ErrEmptyAudio
	}

	return body, nil
}
