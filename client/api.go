package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cr4all/supportservices/models"
)

// ChatAPI is the part of the chat HTTP API the visitor and admin state
// machines drive.
type ChatAPI interface {
	CreateSession(ctx context.Context, visitorID string) (*models.ChatSession, error)
	FindActiveSession(ctx context.Context, visitorID string) (*models.SessionSummary, error)
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	UpdateSession(ctx context.Context, id string, req UpdateRequest) (*models.ChatSession, error)
	ListMessages(ctx context.Context, id string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, id string, sender models.MessageSender, content string) (*models.ChatMessage, error)
}

// UpdateRequest is the body of a session update. Unset fields are not
// sent.
type UpdateRequest struct {
	Status                *models.SessionStatus `json:"status,omitempty"`
	Name                  *string               `json:"name,omitempty"`
	Email                 *string               `json:"email,omitempty"`
	MarkRead              bool                  `json:"markRead,omitempty"`
	MarkAdminMessagesRead bool                  `json:"markAdminMessagesRead,omitempty"`
}

type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// BasePath defaults to "/api/chat".
	BasePath string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// Token is an operator bearer token, sent when set.
	Token string
}

type Client struct {
	baseURL    string
	basePath   string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

var _ ChatAPI = (*Client)(nil)

func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("chat: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("chat: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	basePath := config.BasePath
	if basePath == "" {
		basePath = "/api/chat"
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		basePath:   "/" + strings.Trim(basePath, "/"),
		httpClient: httpClient,
		token:      config.Token,
	}, nil
}

// SetToken replaces the operator token used for later requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Login exchanges operator credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

func (c *Client) CreateSession(ctx context.Context, visitorID string) (*models.ChatSession, error) {
	body := map[string]interface{}{}
	if visitorID != "" {
		body["visitorId"] = visitorID
	}
	var session models.ChatSession
	if err := c.do(ctx, http.MethodPost, c.basePath+"/sessions", nil, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) FindActiveSession(ctx context.Context, visitorID string) (*models.SessionSummary, error) {
	var summary models.SessionSummary
	query := url.Values{"visitorId": {visitorID}}
	if err := c.do(ctx, http.MethodGet, c.basePath+"/sessions", query, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var sessions []models.SessionSummary
	if err := c.do(ctx, http.MethodGet, c.basePath+"/sessions", nil, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := c.do(ctx, http.MethodGet, c.sessionPath(id), nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateRequest) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := c.do(ctx, http.MethodPatch, c.sessionPath(id), nil, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) ListMessages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0)
	if err := c.do(ctx, http.MethodGet, c.sessionPath(id)+"/messages", nil, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, id string, sender models.MessageSender, content string) (*models.ChatMessage, error) {
	var message models.ChatMessage
	body := map[string]string{"sender": string(sender), "content": content}
	if err := c.do(ctx, http.MethodPost, c.sessionPath(id)+"/messages", nil, body, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) sessionPath(id string) string {
	return c.basePath + "/sessions/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, requestBody, out interface{}) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("chat: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("chat: failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s %s: %v", ErrTransport, method, path, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: response.StatusCode}
		if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(response.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("chat: failed to parse %s %s response: %w", method, path, err)
	}
	return nil
}
