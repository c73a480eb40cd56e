// Package llm provides the chat-completion clients the section generators
// talk to.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"go.uber.org/zap"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultMaxTokens     = 4096
	defaultTimeout       = 60 * time.Second
	defaultMaxRetries    = 3
	defaultBaseBackoff   = 1 * time.Second
	defaultRPM           = 50
	defaultBurst         = 5
)

// ErrUnavailable is returned by the noop client when no provider key is
// configured.
var ErrUnavailable = errors.New("llm provider not configured")

// Client sends one role-structured chat request and returns the text of the
// first choice.
type Client interface {
	Complete(ctx context.Context, req *ChatRequest) (string, error)
}

// ChatRequest is a single system + user exchange.
type ChatRequest struct {
	// Op names the caller for error messages, e.g. "sections.overview".
	Op          string
	System      string
	User        string
	Temperature float64
	// JSON asks the provider for a JSON object response.
	JSON      bool
	MaxTokens int
}

func (r *ChatRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// Options configures a provider client.
type Options struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
	MaxRetries        int
	BaseBackoff       time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// OptionsFromConfig maps loaded settings to client options.
func OptionsFromConfig(cfg config.LLMConfig, logger *zap.Logger) Options {
	return Options{
		Provider:          cfg.Provider,
		APIKey:            cfg.APIKey.Value(),
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout.Duration(),
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		MaxRetries:        cfg.MaxRetries,
		Logger:            logger,
	}
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultOpenAIBaseURL
	}
	if o.Model == "" {
		o.Model = defaultOpenAIModel
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = defaultRPM
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = defaultBaseBackoff
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// New builds the client for opts.Provider. A provider without an API key
// degrades to the noop client so the rest of the service keeps working.
func New(opts Options) (Client, error) {
	opts.applyDefaults()

	if opts.Provider != config.ProviderNoop && opts.APIKey == "" {
		opts.Logger.Warn("llm api key not set, plan generation disabled",
			zap.String("provider", opts.Provider))
		return Noop{}, nil
	}

	switch opts.Provider {
	case config.ProviderOpenAI, "":
		return newOpenAIClient(opts), nil
	case config.ProviderLangchain:
		c, err := newLangchainClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderNoop:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

// Noop fails every request with ErrUnavailable.
type Noop struct{}

// Complete implements Client.
func (Noop) Complete(_ context.Context, req *ChatRequest) (string, error) {
	return "", upstream(req.Op, 0, ErrUnavailable)
}
