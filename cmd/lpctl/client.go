package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	httpserver "github.com/fyrsmithlabs/launchplan/internal/http"
)

// Generation waits on several LLM calls, so the default timeout is long.
const requestTimeout = 5 * time.Minute

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

type client struct {
	baseURL string
	token   string
	session string
	http    *http.Client
}

func newClient(opts *cliOptions) *client {
	return &client{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		token:   opts.token,
		session: opts.sessionID,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// do sends a request and decodes a JSON response into out when out is not
// nil. It returns the raw body for callers that need it.
func (c *client) do(ctx context.Context, method, path string, in, out any) ([]byte, http.Header, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set(httpserver.SessionHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e httpserver.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			return nil, nil, &apiError{Status: resp.StatusCode, Message: e.Message}
		}
		return nil, nil, &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return data, resp.Header, nil
}
