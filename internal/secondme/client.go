package secondme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/config"
)

// UpstreamError is any non-success outcome from the SecondMe API: a non-2xx
// HTTP status or a non-zero envelope code.
type UpstreamError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("secondme: %s", e.Message)
	}
	return fmt.Sprintf("secondme: status %d", e.StatusCode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserInfo struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// Client talks to the SecondMe OAuth and chat endpoints. All calls are
// single-shot; there is no retry policy.
type Client struct {
	cfg config.Config
	log zerolog.Logger

	http *http.Client
	// streaming responses can outlive any fixed timeout; ctx controls them
	stream *http.Client
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log,
		http:   &http.Client{Timeout: 30 * time.Second},
		stream: &http.Client{},
	}
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	body := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURI,
		"grant_type":    "authorization_code",
	}
	data, err := c.postJSON(ctx, c.cfg.TokenEndpoint, "", body)
	if err != nil {
		return nil, err
	}
	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("secondme: decode tokens: %w", err)
	}
	return &tokens, nil
}

// RefreshToken trades a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}
	data, err := c.postJSON(ctx, c.cfg.RefreshEndpoint, "", body)
	if err != nil {
		return nil, err
	}
	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("secondme: decode tokens: %w", err)
	}
	return &tokens, nil
}

// GetUserInfo fetches and decodes the profile of the token's owner.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	data, err := c.getJSON(ctx, c.userInfoURL(), accessToken)
	if err != nil {
		return nil, err
	}
	var info UserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("secondme: decode user info: %w", err)
	}
	return &info, nil
}

// FetchUserInfoRaw returns the verbatim user-info response body, upstream
// envelope included, for passthrough endpoints.
func (c *Client) FetchUserInfoRaw(ctx context.Context, accessToken string) ([]byte, error) {
	return c.getRaw(ctx, c.userInfoURL(), accessToken)
}

// FetchShadesRaw returns the verbatim shades response body.
func (c *Client) FetchShadesRaw(ctx context.Context, accessToken string) ([]byte, error) {
	return c.getRaw(ctx, c.apiURL("/api/secondme/user/shades"), accessToken)
}

type chatReq struct {
	Content       string         `json:"content"`
	SessionID     string         `json:"sessionId,omitempty"`
	Stream        bool           `json:"stream"`
	ActionControl *ActionControl `json:"actionControl,omitempty"`
}

// StreamChat opens a streaming chat completion and returns the raw response
// body. The caller owns the body and must close it; a non-2xx status is
// surfaced as an UpstreamError before any stream is handed out.
func (c *Client) StreamChat(ctx context.Context, accessToken, content, sessionID string) (io.ReadCloser, error) {
	b, err := json.Marshal(chatReq{Content: content, SessionID: sessionID, Stream: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, upstreamStatusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) chatURL() string {
	return c.apiURL("/api/secondme/v2/chat")
}

func (c *Client) userInfoURL() string {
	return c.apiURL("/api/secondme/user/info")
}

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.cfg.APIBaseURL, "/") + path
}

// postJSON issues a POST, checks both the HTTP status and the envelope code,
// and returns the envelope data.
func (c *Client) postJSON(ctx context.Context, url, accessToken string, body any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.doEnvelope(req)
}

func (c *Client) getJSON(ctx context.Context, url, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.doEnvelope(req)
}

func (c *Client) getRaw(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamStatusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) doEnvelope(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamStatusError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("secondme: decode response: %w", err)
	}
	if env.Code != 0 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}

func upstreamStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	return &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
}
