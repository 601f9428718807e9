// Package client talks to the remote BioGames scoring API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/biogames-go/internal/model"
)

// DefaultTimeout bounds every request made without a caller-supplied http.Client
const DefaultTimeout = 30 * time.Second

// Client is an HTTP client for the remote API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client. A nil httpClient uses a default with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the API root all paths are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// errorBody covers the error shapes the API returns
type errorBody struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	ExistingGameID *int   `json:"existing_game_id"`
}

// do performs an HTTP request and decodes a JSON response into result.
// Non-2xx responses become *model.NetworkError, wrapping model.ErrNotFound on 404,
// except a 400 carrying existing_game_id which becomes *model.ConflictError.
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return decodeError(op, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &model.NetworkError{Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return nil
}

func decodeError(op string, status int, body []byte) error {
	var eb errorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &eb); err == nil {
		if status == http.StatusBadRequest && eb.ExistingGameID != nil {
			return &model.ConflictError{ExistingGameID: model.GameID(*eb.ExistingGameID)}
		}
		switch {
		case eb.Message != "":
			message = eb.Message
		case eb.Error != "":
			message = eb.Error
		}
	}

	netErr := &model.NetworkError{Op: op, Status: status, Message: message}
	if status == http.StatusNotFound {
		netErr.Err = model.ErrNotFound
	}
	return netErr
}

// fetch downloads a raw resource such as an image
func (c *Client) fetch(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(op, resp.StatusCode, data)
	}
	return data, nil
}
