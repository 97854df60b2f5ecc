package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MailpitClient reads the inbox of a Mailpit container over its REST API.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a client for the Mailpit API at host:port.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a message summary as listed by Mailpit.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Snippet string           `json:"Snippet"`
}

// MailpitAddress is a single mailbox.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

// SentTo reports whether address is one of the message recipients.
func (m MailpitMessage) SentTo(address string) bool {
	for _, to := range m.To {
		if strings.EqualFold(to.Address, address) {
			return true
		}
	}
	return false
}

// Messages returns every message in the inbox, newest first.
func (c *MailpitClient) Messages(ctx context.Context) ([]MailpitMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get messages: status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Messages []MailpitMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return result.Messages, nil
}

// DeleteAll empties the inbox.
func (c *MailpitClient) DeleteAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete messages: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForRecipient polls until a message addressed to address arrives or
// timeout elapses.
func (c *MailpitClient) WaitForRecipient(ctx context.Context, address string, timeout time.Duration) (MailpitMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		messages, err := c.Messages(ctx)
		if err == nil {
			for _, m := range messages {
				if m.SentTo(address) {
					return m, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return MailpitMessage{}, fmt.Errorf("no message for %s within %s", address, timeout)
		case <-ticker.C:
		}
	}
}
