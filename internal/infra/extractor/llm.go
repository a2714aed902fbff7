// Package extractor implements date extraction backed by an LLM messages API.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contract_alert_engine/internal/domain/extraction"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultModel       = "claude-3-5-sonnet-20241022"
	defaultMaxTokens   = 2048
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	maxContractChars   = 150_000

	// 50 requests per minute.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrDisabled is returned when no extractor is configured.
var ErrDisabled = errors.New("date extractor is not configured")

// Config configures the LLM extractor.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

// LLMExtractor asks the model for the significant dates of a contract and
// parses its JSON answer.
type LLMExtractor struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

// New returns an extractor for cfg, or a Disabled extractor when no API key is set.
func New(cfg Config) extraction.Extractor {
	if cfg.APIKey == "" {
		return Disabled{}
	}
	return NewLLMExtractor(cfg)
}

func NewLLMExtractor(cfg Config) *LLMExtractor {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.BaseBackoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}
	return &LLMExtractor{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:  maxRetries,
		baseBackoff: backoff,
	}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

const systemPrompt = `You extract significant calendar dates from contracts.
Answer with a JSON array only. Each element has the fields:
"dateType" (one of start_date, end_date, renewal_date, termination_notice, payment_due, review_date, warranty_expiry, other),
"date" (YYYY-MM-DD), "description" (one sentence), "clause" (the exact source excerpt, at most 300 characters),
"confidence" (high, medium or low).
Use high only when the date is stated explicitly. Answer [] when there are no dates.`

// ExtractDates implements extraction.Extractor.
func (e *LLMExtractor) ExtractDates(ctx context.Context, contractText, contractType string) ([]extraction.Candidate, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	contractText = truncateRunes(contractText, maxContractChars)
	req := messagesRequest{
		Model:       e.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0,
		System:      systemPrompt,
		Messages: []message{{
			Role:    "user",
			Content: fmt.Sprintf("Contract type: %s\n\nContract text:\n%s", contractType, contractText),
		}},
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		text, err := e.doRequest(ctx, req)
		if err == nil {
			return ParseCandidates(text)
		}
		lastErr = err
		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (e *LLMExtractor) doRequest(ctx context.Context, req messagesRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", e.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from API")
}

// ParseCandidates decodes the model's answer. Surrounding prose or code fences
// are ignored; the outermost JSON array is decoded.
func ParseCandidates(text string) ([]extraction.Candidate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in extractor response")
	}
	var candidates []extraction.Candidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode extracted dates: %w", err)
	}
	return candidates, nil
}

// Disabled is the extractor used when none is configured.
type Disabled struct{}

func (Disabled) ExtractDates(context.Context, string, string) ([]extraction.Candidate, error) {
	return nil, ErrDisabled
}

// truncateRunes cuts s to at most max runes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
