package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// langchainClient routes requests through langchaingo's OpenAI provider,
// which works against any OpenAI-compatible endpoint.
type langchainClient struct {
	model   llms.Model
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newLangchainClient(opts Options) (*langchainClient, error) {
	model, err := openai.New(
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
		openai.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/v1"),
		openai.WithHTTPClient(opts.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("creating langchain openai client: %w", err)
	}
	return &langchainClient{
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.Burst),
		logger:  opts.Logger,
	}, nil
}

// Complete implements Client.
func (c *langchainClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", upstream(req.Op, 0, fmt.Errorf("rate limiter: %w", err))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.maxTokens()),
	}
	if req.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		if errors.Is(err, openai.ErrEmptyResponse) {
			return "", &plan.MalformedResponseError{Op: req.Op, Reason: "no choices in response", Err: err}
		}
		c.logger.Debug("langchain completion failed", zap.String("op", req.Op), zap.Error(err))
		return "", upstream(req.Op, 0, err)
	}
	if len(resp.Choices) == 0 {
		return "", &plan.MalformedResponseError{Op: req.Op, Reason: "no choices in response"}
	}

	content := resp.Choices[0].Content
	if strings.TrimSpace(content) == "" {
		return "", &plan.MalformedResponseError{Op: req.Op, Reason: "empty content"}
	}
	return content, nil
}
