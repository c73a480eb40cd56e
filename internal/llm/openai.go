package llm

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

	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// openAIClient calls the chat-completions endpoint over plain HTTP.
type openAIClient struct {
	model       string
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	logger      *zap.Logger
}

func newOpenAIClient(opts Options) *openAIClient {
	return &openAIClient{
		model:       opts.Model,
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.Burst),
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		logger:      opts.Logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements Client. It waits on the rate limiter, then retries
// transport errors, 429 and 5xx with exponential backoff.
func (o *openAIClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", upstream(req.Op, 0, fmt.Errorf("rate limiter: %w", err))
	}

	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.maxTokens(),
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := o.baseBackoff * time.Duration(1<<(attempt-1))
			o.logger.Debug("retrying llm request",
				zap.String("op", req.Op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", upstream(req.Op, 0, ctx.Err())
			}
		}

		content, err := o.doRequest(ctx, req.Op, body)
		if err == nil {
			return content, nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) || ctx.Err() != nil {
			break
		}
	}

	var re *retryableError
	if errors.As(lastErr, &re) {
		return "", re.err
	}
	return "", lastErr
}

func (o *openAIClient) doRequest(ctx context.Context, op string, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", upstream(op, 0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: upstream(op, 0, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: upstream(op, resp.StatusCode, fmt.Errorf("read response: %w", err))}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", &retryableError{err: upstream(op, resp.StatusCode, apiErrorMessage(data))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", upstream(op, resp.StatusCode, apiErrorMessage(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &plan.MalformedResponseError{Op: op, Reason: "invalid completion envelope", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &plan.MalformedResponseError{Op: op, Reason: "no choices in response"}
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &plan.MalformedResponseError{Op: op, Reason: "empty content"}
	}
	return content, nil
}

func apiErrorMessage(body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return errors.New(e.Error.Message)
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return errors.New(strings.TrimSpace(string(body)))
}

func upstream(op string, status int, err error) error {
	return &plan.UpstreamError{Op: op, StatusCode: status, Err: err}
}

// retryableError marks a failure that may succeed on retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }
