package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tree-checkout/internal/model"
	"tree-checkout/internal/transport"
)

// =============================================================================
// STOREFRONT API CLIENT
// =============================================================================
//
// Every operation is a single GraphQL POST to
//   https://{store}/api/{version}/graphql.json
//
// Failure classification happens here and nowhere else:
//   - network errors, 5xx, 429 and THROTTLED → TransportError
//   - userErrors and other 4xx                 → RemoteValidationError
//   - null cart / product                      → NotFoundError
//
// The client never retries. A token-bucket limiter keeps a burst of widget
// sessions under the Storefront rate limit.
// =============================================================================

const (
	// DefaultAPIVersion is the Storefront API release the queries target.
	DefaultAPIVersion = "2024-10"

	// collectionPageSize bounds step product listings.
	collectionPageSize = 20

	userAgent = "Tree-Checkout/1.0"
)

// Config configures a Storefront client.
type Config struct {
	StoreDomain string // e.g. "brooklyn-christmas-tree.myshopify.com"
	AccessToken string // public Storefront access token
	APIVersion  string // defaults to DefaultAPIVersion

	// Endpoint overrides the derived GraphQL URL (tests).
	Endpoint string

	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
	Burst             int
	ChromeTLS         bool // present a browser TLS fingerprint

	Logger *slog.Logger
}

// Client is the Storefront GraphQL client.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Storefront client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("storefront access token is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.StoreDomain == "" {
			return nil, fmt.Errorf("store domain is required")
		}
		version := cfg.APIVersion
		if version == "" {
			version = DefaultAPIVersion
		}
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", strings.TrimSuffix(cfg.StoreDomain, "/"), version)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport.New(transport.Options{Timeout: timeout, ChromeTLS: cfg.ChromeTLS}),
		},
		endpoint: endpoint,
		token:    cfg.AccessToken,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// === HTTP Helpers ===

// execute runs one GraphQL operation and decodes data into T.
// Top-level GraphQL errors are classified; a nil data payload is an error.
func execute[T any](ctx context.Context, c *Client, operation, query string, vars map[string]any) (*T, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewTransportError("throttled", err)
	}

	req, err := c.newRequest(ctx, &graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("creating %s request: %w", operation, err))
	}

	start := time.Now()
	body, err := c.do(req)
	c.logger.Debug("storefront call",
		"operation", operation,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		return nil, err
	}

	var resp graphQLResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewTransportError("malformed response", fmt.Errorf("parsing %s response: %w", operation, err))
	}
	if len(resp.Errors) > 0 {
		return nil, classifyGraphQLErrors(resp.Errors)
	}
	if resp.Data == nil {
		return nil, model.NewTransportError("empty response", fmt.Errorf("%s returned no data", operation))
	}
	return resp.Data, nil
}

// newRequest creates the GraphQL POST with Storefront token authentication.
func (c *Client) newRequest(ctx context.Context, body *graphQLRequest) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Shopify-Storefront-Access-Token", c.token)

	return req, nil
}

// do executes the request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, model.NewTransportError("timeout", err)
		}
		return nil, model.NewTransportError("network", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransportError("network", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, body)
	}
	return body, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// parseError converts non-2xx Storefront responses to model.APIError.
func parseError(statusCode int, body []byte) error {
	var resp graphQLResponse[json.RawMessage]
	json.Unmarshal(body, &resp) // Best effort parse

	switch {
	case statusCode == http.StatusTooManyRequests:
		return model.NewTransportError("throttled", fmt.Errorf("status %d", statusCode))
	case statusCode >= 500:
		return model.NewTransportError("upstream unavailable", fmt.Errorf("status %d", statusCode))
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.NewInternalError(fmt.Errorf("storefront rejected access token: status %d", statusCode))
	case statusCode == http.StatusNotFound:
		return model.NewNotFoundError("storefront endpoint")
	default:
		if len(resp.Errors) > 0 {
			return classifyGraphQLErrors(resp.Errors)
		}
		return model.NewRemoteValidationError([]string{fmt.Sprintf("request rejected (status %d)", statusCode)})
	}
}

// classifyGraphQLErrors maps top-level errors. Throttling is transient;
// anything else means the input itself was rejected.
func classifyGraphQLErrors(errs []graphQLError) error {
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Extensions.Code {
		case "THROTTLED":
			return model.NewTransportError("throttled", errors.New(e.Message))
		case "INTERNAL_SERVER_ERROR":
			return model.NewTransportError("upstream unavailable", errors.New(e.Message))
		}
		reasons = append(reasons, e.Message)
	}
	return model.NewRemoteValidationError(reasons)
}

// classifyUserErrors maps mutation userErrors. A reference to a cart or
// line that no longer exists is NotFound so the engine can reset or treat
// a removal as already applied.
func classifyUserErrors(errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.Contains(strings.ToLower(e.Message), "does not exist") {
			if len(e.Field) > 0 && e.Field[0] == "cartId" {
				return model.NewNotFoundError("cart")
			}
			if len(e.Field) > 0 && (e.Field[0] == "lineIds" || e.Field[0] == "lines") && !strings.Contains(e.Message, "merchandise with id") {
				return model.NewNotFoundError("cart line")
			}
		}
		reasons = append(reasons, e.Message)
	}
	return model.NewRemoteValidationError(reasons)
}
