package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPusher delivers events with a JSON POST to the connection's callback
// endpoint. A 410 response means the connection is gone.
type HTTPPusher struct {
	client *http.Client
}

// NewHTTPPusher constructs an HTTPPusher. A nil client gets a default with a
// 10 second timeout.
func NewHTTPPusher(client *http.Client) *HTTPPusher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPusher{client: client}
}

// Push implements Pusher.
func (p *HTTPPusher) Push(ctx context.Context, rec ConnectionRecord, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.CallbackEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("callback %s: %w", rec.CallbackEndpoint, ErrGone)
	case resp.StatusCode >= 300:
		return fmt.Errorf("callback %s returned %d", rec.CallbackEndpoint, resp.StatusCode)
	}
	return nil
}
