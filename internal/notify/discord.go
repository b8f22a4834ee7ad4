// Package notify posts narrative lines to Discord channels over the REST
// API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Discord posts channel messages via POST /channels/{id}/messages.
type Discord struct {
	token  string
	client *http.Client
	apiURL string

	// Posts are serialized so narrative lines arrive in event order.
	mu sync.Mutex
}

func NewDiscord(token string) *Discord {
	return &Discord{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		apiURL: "https://discord.com/api/v10",
	}
}

// Post sends a plain-content message to the channel.
func (d *Discord) Post(ctx context.Context, channelID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	body, err := json.Marshal(map[string]any{"content": content})
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", d.apiURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("discord rate limited channel %s", channelID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord returned %d", resp.StatusCode)
	}
	return nil
}
