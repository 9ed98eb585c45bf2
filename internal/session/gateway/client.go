// Package gateway talks to a session gateway over its JSON HTTP API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
	"github.com/foxzi/broadcaster/internal/session"
)

// APIError is a non-2xx gateway reply
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Options configures a Client
type Options struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client is a session.Session backed by a gateway process. Push events are
// posted by the gateway to the broadcaster webhook, not read by this client.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ session.Session = (*Client)(nil)

// NewClient creates a new gateway client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		callbackURL: opts.CallbackURL,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// request performs an HTTP request to the gateway API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Start asks the gateway to start the session. A QR code or ready state
// already known to the gateway is forwarded to n immediately.
func (c *Client) Start(ctx context.Context, n session.Notifier) error {
	var resp StartResponse
	if err := c.request(ctx, http.MethodPost, "/api/v1/session/start", StartRequest{CallbackURL: c.callbackURL}, &resp); err != nil {
		return err
	}

	c.logger.Info("session gateway started", "status", resp.Status, "ready", resp.Ready)

	if n == nil {
		return nil
	}
	if resp.QR != "" {
		n.Notify(session.NewEvent(session.EventQR, resp.QR))
	}
	if resp.Status != "" {
		n.Notify(session.NewEvent(session.EventStatus, resp.Status))
	}
	if resp.Ready {
		n.Notify(session.NewEvent(session.EventReady, ""))
	}
	return nil
}

// FetchContacts returns the session address book
func (c *Client) FetchContacts(ctx context.Context) ([]contact.RawContact, error) {
	var resp ContactsResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/contacts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// FetchGroups returns chat groups with participants
func (c *Client) FetchGroups(ctx context.Context) ([]group.Group, error) {
	var resp GroupsResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/groups", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// SendMessage sends text to the chat at address
func (c *Client) SendMessage(ctx context.Context, address, text string) error {
	var resp MessageResponse
	if err := c.request(ctx, http.MethodPost, "/api/v1/messages", MessageRequest{ChatID: address, Text: text}, &resp); err != nil {
		return err
	}
	c.logger.Debug("message accepted by gateway", "chat_id", address, "id", resp.ID)
	return nil
}

// Logout ends the session on the gateway
func (c *Client) Logout(ctx context.Context) error {
	return c.request(ctx, http.MethodPost, "/api/v1/session/logout", nil, nil)
}
