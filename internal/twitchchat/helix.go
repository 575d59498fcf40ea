package twitchchat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HelixClient is the minimal Helix surface the adapter needs: the streams
// endpoint, queried by user login. BaseURL is overridable for tests.
type HelixClient struct {
	ClientID string
	Tokens   TokenSource
	BaseURL  string
	Client   *http.Client
}

const defaultHelixURL = "https://api.twitch.tv/helix"

// Stream is one live stream row from the streams endpoint.
type Stream struct {
	ID          string `json:"id"`
	ViewerCount int    `json:"viewer_count"`
}

// LiveStreams returns the channel's live streams, empty when offline.
func (h *HelixClient) LiveStreams(ctx context.Context, login string) ([]Stream, error) {
	access, err := h.Tokens.Access()
	if err != nil {
		return nil, fmt.Errorf("twitchchat: helix token: %w", err)
	}
	base := h.BaseURL
	if base == "" {
		base = defaultHelixURL
	}
	endpoint := fmt.Sprintf("%s/streams?user_login=%s", base, url.QueryEscape(login))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Client-Id", h.ClientID)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitchchat: helix streams: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitchchat: helix streams status %d", resp.StatusCode)
	}

	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("twitchchat: helix decode: %w", err)
	}
	return body.Data, nil
}
