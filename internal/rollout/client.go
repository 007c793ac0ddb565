package rollout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"crm-insights/internal/session"
)

const responsePreviewLimit = 2000

// NewUpstreamHTTPClient builds the shared HTTP client for Rollout API calls:
// pooled connections, keep-alive, and timeouts so a slow upstream cannot hang
// a request forever (the pagination caps bound iteration count, not latency).
func NewUpstreamHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// CallOptions describes one upstream request.
type CallOptions struct {
	BaseURL      string
	Path         string
	Method       string // defaults to GET
	SearchParams map[string]string
	Body         any    // JSON-serialized when non-nil
	ConsumerKey  string // optional override for the token subject
	CredentialID string // selects the connected account upstream
	Headers      map[string]string
}

// Client issues authenticated calls against the Rollout platform and CRM
// APIs. Outbound calls share a token-bucket limiter so aggregation fan-out
// cannot hammer the upstream.
type Client struct {
	log        *slog.Logger
	auth       *Auth
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(log *slog.Logger, auth *Auth) *Client {
	return &Client{
		log:        log,
		auth:       auth,
		httpClient: NewUpstreamHTTPClient(),
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
	}
}

// Call performs one request and returns the decoded JSON body (any) or, for
// non-JSON responses, the body as a string. Non-2xx responses come back as
// *APIError carrying the upstream status and raw body.
func (c *Client) Call(ctx context.Context, prefs session.Preferences, opts CallOptions) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	consumerKey := c.auth.ResolveConsumerKey(prefs, opts.ConsumerKey)
	token, _, err := c.auth.MintToken(prefs, consumerKey)
	if err != nil {
		return nil, err
	}

	requestURL, err := buildRequestURL(opts.BaseURL, opts.Path, opts.SearchParams)
	if err != nil {
		return nil, fmt.Errorf("invalid rollout url: %w", err)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if opts.CredentialID != "" {
		req.Header.Set("X-Rollout-Credential-Id", opts.CredentialID)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	c.log.Info("rollout_api_request", "method", method, "url", requestURL, "credential_id", opts.CredentialID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rollout request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("rollout_api_error",
			"method", method,
			"url", requestURL,
			"status", resp.StatusCode,
			"body", preview(string(raw)),
		)
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		c.log.Debug("rollout_api_response", "method", method, "url", requestURL, "status", resp.StatusCode, "body", preview(string(raw)))
		return decoded, nil
	}

	c.log.Debug("rollout_api_response", "method", method, "url", requestURL, "status", resp.StatusCode, "body", preview(string(raw)))
	return string(raw), nil
}

// buildRequestURL joins base and path the way the upstream expects: the base
// keeps a trailing slash, the path loses its leading one, and empty search
// params are skipped.
func buildRequestURL(base, path string, searchParams map[string]string) (string, error) {
	normalizedBase := base
	if !strings.HasSuffix(normalizedBase, "/") {
		normalizedBase += "/"
	}
	joined := normalizedBase + strings.TrimPrefix(path, "/")

	u, err := url.Parse(joined)
	if err != nil {
		return "", err
	}

	if len(searchParams) > 0 {
		q := u.Query()
		for k, v := range searchParams {
			if k == "" || v == "" {
				continue
			}
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func preview(s string) string {
	if len(s) > responsePreviewLimit {
		return s[:responsePreviewLimit]
	}
	return s
}
