package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBarkServer = "https://api.day.app"

// BarkMirror pushes a short copy of each notification to an operator device
// through a Bark server.
type BarkMirror struct {
	client    *http.Client
	serverURL string
	key       string
}

// NewBarkMirror creates a Bark mirror; an empty serverURL uses the public server.
func NewBarkMirror(serverURL, key string) *BarkMirror {
	if serverURL == "" {
		serverURL = defaultBarkServer
	}

	return &BarkMirror{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		serverURL: strings.TrimRight(serverURL, "/"),
		key:       key,
	}
}

func (b *BarkMirror) Name() string {
	return "bark"
}

// Post sends a Bark notification: {server}/{key}/{title}/{body}?url={link}
func (b *BarkMirror) Post(ctx context.Context, content EmailContent) error {
	if b.key == "" {
		return fmt.Errorf("bark key is empty")
	}

	barkURL := fmt.Sprintf("%s/%s/%s/%s",
		b.serverURL,
		url.PathEscape(b.key),
		url.PathEscape(brandName),
		url.PathEscape(content.Subject),
	)
	if content.Link != "" {
		barkURL += "?url=" + url.QueryEscape(content.Link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, barkURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
