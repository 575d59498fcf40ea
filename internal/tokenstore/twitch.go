package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// TwitchRefresher exchanges a refresh token for a fresh access token and
// persists both through the store. Base URLs are overridable for tests.
type TwitchRefresher struct {
	ClientID     string
	ClientSecret string
	Store        *Store

	TokenURL    string
	ValidateURL string
	Client      *http.Client
}

const (
	defaultTokenURL    = "https://id.twitch.tv/oauth2/token"
	defaultValidateURL = "https://id.twitch.tv/oauth2/validate"
)

func (r *TwitchRefresher) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

// ValidateLogin checks the access token against the OAuth validate
// endpoint and returns the login it belongs to.
func (r *TwitchRefresher) ValidateLogin(ctx context.Context, access string) (string, error) {
	endpoint := r.ValidateURL
	if endpoint == "" {
		endpoint = defaultValidateURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := r.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tokenstore: validate status %d", resp.StatusCode)
	}
	var v struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", err
	}
	if v.Login == "" {
		return "", fmt.Errorf("tokenstore: validate returned no login")
	}
	return v.Login, nil
}

// Refresh runs the refresh_token grant, persists the new access token and
// any rotated refresh token, and returns the new access token.
func (r *TwitchRefresher) Refresh(ctx context.Context) (string, error) {
	refresh, err := r.Store.Refresh()
	if err != nil {
		return "", err
	}
	endpoint := r.TokenURL
	if endpoint == "" {
		endpoint = defaultTokenURL
	}

	form := url.Values{}
	form.Set("client_id", r.ClientID)
	form.Set("client_secret", r.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := r.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tokenstore: refresh status %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("tokenstore: no access_token in refresh response")
	}
	if err := r.Store.SetAccess(tok.AccessToken); err != nil {
		return "", err
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if err := r.Store.SetRefresh(tok.RefreshToken); err != nil {
			return "", err
		}
	}
	return tok.AccessToken, nil
}
