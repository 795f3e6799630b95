package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/logger"
)

// Request is the body of one stream invocation
type Request struct {
	ThreadID string         `json:"thread_id"`
	UserID   string         `json:"user_id"`
	Message  string         `json:"message"`
	AgentID  string         `json:"agent_id"`
	Config   map[string]any `json:"config"`

	// Token is sent as a bearer credential when non-empty
	Token string `json:"-"`
}

// Streamer opens the event stream for a request
type Streamer interface {
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Client talks to the conversational backend over HTTP
type Client struct {
	baseURL     string
	streamPath  string
	historyPath string
	httpClient  *http.Client
	log         *logger.Logger
}

var _ Streamer = (*Client)(nil)

// NewClient creates a client for baseURL using the default endpoint paths
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, config.DefaultConnectTimeout)
}

// NewClientWithTimeout creates a client whose connect and response-header
// timeout is connectTimeout. The body itself is read without a deadline.
func NewClientWithTimeout(baseURL string, connectTimeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.ResponseHeaderTimeout = connectTimeout

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		streamPath:  "/chat/stream",
		historyPath: "/chat/history",
		httpClient:  &http.Client{Transport: transport},
		log:         logger.WithComponent("agent_client"),
	}
}

// NewClientFromConfig creates a client from the backend settings
func NewClientFromConfig(cfg config.BackendConfig) *Client {
	c := NewClientWithTimeout(cfg.URL, cfg.ConnectTimeout)
	if cfg.StreamPath != "" {
		c.streamPath = cfg.StreamPath
	}
	if cfg.HistoryPath != "" {
		c.historyPath = cfg.HistoryPath
	}
	return c
}

// Stream posts req and returns the event-stream body. Non-2xx responses
// are returned as *TransportError carrying the server's error message.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + c.streamPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	c.log.Debug("Opening stream", "url", endpoint, "thread_id", req.ThreadID, "agent_id", req.AgentID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "stream request", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError("stream request", resp)
	}

	return resp.Body, nil
}

// FetchHistory loads the persisted records of a thread
func (c *Client) FetchHistory(ctx context.Context, threadID, token string) ([]chat.HistoryRecord, error) {
	endpoint := c.baseURL + c.historyPath + "?thread_id=" + url.QueryEscape(threadID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "history request", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("history request", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "history request", Cause: err}
	}
	return chat.DecodeHistory(body)
}

// statusError reads the error body of an unsuccessful response. JSON bodies
// with an "error" or "detail" field contribute that message, anything else
// the raw text.
func statusError(op string, resp *http.Response) error {
	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "failed to read error response",
			Cause:      err,
		}
	}

	var errorResp struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	message := strings.TrimSpace(string(errorBody))
	if json.Unmarshal(errorBody, &errorResp) == nil {
		if d, ok := errorResp.Detail.(string); ok && d != "" {
			message = d
		}
		if errorResp.Error != "" {
			message = errorResp.Error
		}
	}

	return &TransportError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
