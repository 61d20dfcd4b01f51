// Package ltclient is the HTTP client for LanguageTool-compatible check
// services. It speaks the v2 form-encoded protocol: text and language go out
// as an urlencoded POST, matches come back as JSON. Responses are treated as
// untrusted input: the body is size-capped and matches that do not fit the
// checked text are dropped at this boundary, so the rest of the engine can
// assume well-formed results.
package ltclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/proofwatch/annotation"
)

// maxResponseBody caps how much of a service response is read (10 MiB).
const maxResponseBody int64 = 10 << 20

const defaultTimeout = 10 * time.Second

// DefaultBaseURL is the public LanguageTool API.
const DefaultBaseURL = "https://api.languagetool.org/v2"

// Client checks text against one service endpoint. Safe for concurrent use.
type Client struct {
	base   string
	hc     *http.Client
	bucket *rate.Limiter
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithRateLimit throttles outgoing requests to perSec with the given burst.
// Zero or negative perSec disables throttling.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.bucket = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.bucket = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the service at baseURL (the /v2 root, not the
// check endpoint itself). An empty baseURL means the public API.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		hc:     &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// checkResponse is the service's reply shape. Fields we do not use are
// still parsed so that warnings can be surfaced.
type checkResponse struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Warnings struct {
		IncompleteResults bool `json:"incompleteResults"`
	} `json:"warnings"`
	Language struct {
		Name             string `json:"name"`
		Code             string `json:"code"`
		DetectedLanguage struct {
			Name string `json:"name"`
			Code string `json:"code"`
		} `json:"detectedLanguage"`
	} `json:"language"`
	Matches []annotation.Match `json:"matches"`
}

// Check submits text and returns the service's matches, with offsets local
// to the submitted text. Matches whose offsets fall outside the text are
// dropped here.
func (c *Client) Check(ctx context.Context, text, language string) ([]annotation.Match, error) {
	if language == "" {
		language = "auto"
	}
	if c.bucket != nil {
		if err := c.bucket.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ltclient: rate limit: %w", err)
		}
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("language", language)
	form.Set("enabledOnly", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ltclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ltclient: check: %w", err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("ltclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ltclient: status %d: %s", resp.StatusCode, snippet(body))
	}

	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ltclient: decode response: %w", err)
	}
	if parsed.Warnings.IncompleteResults {
		c.logger.Warn("ltclient: service reported incomplete results", "language", language)
	}

	textLen := utf8.RuneCountInString(text)
	valid := parsed.Matches[:0]
	for _, m := range parsed.Matches {
		if m.Offset < 0 || m.Length <= 0 || m.Offset+m.Length > textLen {
			c.logger.Warn("ltclient: dropping out-of-bounds match",
				"offset", m.Offset, "length", m.Length, "text_len", textLen, "rule", m.Rule.ID)
			continue
		}
		valid = append(valid, m)
	}
	return valid, nil
}

// Language is one service-supported language.
type Language struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	LongCode string `json:"longCode"`
}

// Languages lists the languages the service supports.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/languages", nil)
	if err != nil {
		return nil, fmt.Errorf("ltclient: create request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ltclient: languages: %w", err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("ltclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ltclient: status %d: %s", resp.StatusCode, snippet(body))
	}

	var langs []Language
	if err := json.Unmarshal(body, &langs); err != nil {
		return nil, fmt.Errorf("ltclient: decode languages: %w", err)
	}
	return langs, nil
}

// readLimited reads at most maxBytes from r.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
