package notify

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
)

// APIError is a failed Telegram Bot API call.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Description)
}

// transientDelivery reports whether a delivery failure is worth
// retrying. Network errors, 429, and 5xx are; other 4xx mean the
// request itself is bad.
func transientDelivery(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// TelegramClient is a minimal Bot API client for message delivery.
type TelegramClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewTelegramClient creates a client for the given bot token. baseURL
// is overridable for tests; empty means the public Bot API.
func NewTelegramClient(baseURL, token string, timeout time.Duration) *TelegramClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramClient{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

// SendMessage delivers a Markdown-formatted text to the chat.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	return c.post(ctx, "sendMessage", payload)
}

// SendPhoto delivers a photo by URL to the chat.
func (c *TelegramClient) SendPhoto(ctx context.Context, chatID, photoURL string) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"photo":      photoURL,
		"parse_mode": "Markdown",
	}
	return c.post(ctx, "sendPhoto", payload)
}

func (c *TelegramClient) post(ctx context.Context, method string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	u := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiResp struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(body, &apiResp)
		return &APIError{StatusCode: res.StatusCode, Description: apiResp.Description}
	}
	return nil
}
