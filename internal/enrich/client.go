package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/retry"
)

const maxReplyBytes = 1 << 20

// Config holds the LLM service configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewConfig creates the LLM service configuration from environment variables
func NewConfig() Config {
	timeout := 30 * time.Second
	if s := os.Getenv("LLM_TIMEOUT"); s != "" {
		if parsed, err := time.ParseDuration(s); err == nil {
			timeout = parsed
		}
	}
	base := os.Getenv("LLM_SERVICE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return Config{BaseURL: strings.TrimRight(base, "/"), Timeout: timeout}
}

// Client sends a prompt to a text generation backend and returns its reply.
type Client interface {
	Recommend(ctx context.Context, prompt string) (string, error)
}

// HTTPClient calls the recommendation endpoint of the main service.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	retry   retry.Config
}

// NewHTTPClient creates a client for cfg. Each attempt is bounded by
// cfg.Timeout.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := retry.DefaultConfig()
	rc.Logger = logger.With(zap.String("component", "llm-client"))
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: rc,
	}
}

type recommendationRequest struct {
	UserQuery   string         `json:"userQuery"`
	UserContext map[string]any `json:"userContext"`
}

// Recommend posts prompt to /api/recommendations. Server errors and
// transport failures are retried; client errors are not.
func (c *HTTPClient) Recommend(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(recommendationRequest{UserQuery: prompt, UserContext: map[string]any{}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	return retry.DoResult(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.post(ctx, body)
	})
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/recommendations", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read llm reply: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("llm service: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", retry.Permanent(fmt.Errorf("llm service: HTTP %d", resp.StatusCode))
	}
	return string(data), nil
}
