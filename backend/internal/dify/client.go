package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/config"
)

const maxLineSize = 1 << 20

// Client talks to the Dify chat-messages API.
type Client struct {
	baseURL    string
	defaultKey string
	keys       map[string]string
	httpClient *http.Client
}

func NewClient(env *config.DifyEnv) *Client {
	return &Client{
		baseURL:    strings.TrimRight(env.BaseURL, "/"),
		defaultKey: env.APIKey,
		keys:       env.APIKeys,
		httpClient: &http.Client{Timeout: env.Timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// APIKey returns the app key configured for contextID, falling back to the
// default key.
func (c *Client) APIKey(contextID string) string {
	if k, ok := c.keys[contextID]; ok && k != "" {
		return k
	}
	return c.defaultKey
}

type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
	URL            string `json:"url,omitempty"`
}

type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          []File         `json:"files,omitempty"`
}

type chatRequestBody struct {
	ChatRequest
	ResponseMode string `json:"response_mode"`
}

// APIError is returned when the engine rejects the request before streaming.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dify API error (status %d): %s", e.StatusCode, e.Body)
}

// StreamChatMessage posts req in streaming mode and calls fn for every
// decoded event in arrival order. It returns when the stream ends, ctx is
// done, or fn returns an error. Undecodable lines are logged and skipped.
func (c *Client) StreamChatMessage(ctx context.Context, apiKey string, req ChatRequest, fn func(Event) error) error {
	if apiKey == "" {
		return errors.New("dify API key is required")
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	payload, err := json.Marshal(chatRequestBody{ChatRequest: req, ResponseMode: "streaming"})
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return readEvents(ctx, resp.Body, fn)
}

func readEvents(ctx context.Context, r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		ev, err := Decode([]byte(data))
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable dify event", "error", err)
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to read dify stream: %w", err)
	}
	return nil
}
