package livefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	loginPath = "/v1/session/login"
	renewPath = "/v1/session/renew"

	defaultHTTPTimeout = 7 * time.Second
)

// ErrAuthRejected is returned when the feed vendor rejects the supplied
// credentials or tokens. Callers should re-login rather than retry blindly.
var ErrAuthRejected = errors.New("livefeed: credentials rejected")

// SessionConfig holds the credentials for the vendor session handshake.
type SessionConfig struct {
	// BaseURL of the vendor's REST API, e.g. "https://api.vendor.com"
	BaseURL string

	APIKey    string
	AccountID string

	// TOTPSecret is the base32 seed registered with the vendor; a fresh
	// one-time code is generated for every login attempt.
	TOTPSecret string

	// Timeout for each HTTP call. Defaults to 7 seconds if zero.
	Timeout time.Duration
}

// Session holds the tokens issued by a successful login.
type Session struct {
	AccessToken  string
	RefreshToken string
	FeedToken    string
	IssuedAt     time.Time
}

// SessionClient performs the login/renew token handshake against the
// feed vendor's REST API.
type SessionClient struct {
	cfg     SessionConfig
	client  *http.Client
	localIP string

	// SessionExpiryHook, if set, is called whenever the vendor rejects a
	// token mid-session (HTTP 401/403).
	SessionExpiryHook func()
}

// NewSessionClient validates the config and builds the HTTP client.
func NewSessionClient(cfg SessionConfig) (*SessionClient, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.AccountID == "" || cfg.TOTPSecret == "" {
		return nil, errors.New("livefeed: base URL, API key, account ID and TOTP secret are all required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &SessionClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		localIP: localIP(),
	}, nil
}

// apiEnvelope is the vendor's standard response wrapper.
type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

type sessionData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	FeedToken    string `json:"feed_token"`
}

// Login generates a fresh TOTP code and performs the full handshake.
func (c *SessionClient) Login(ctx context.Context) (*Session, error) {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("livefeed: generate totp: %w", err)
	}

	req := map[string]string{
		"account_id": c.cfg.AccountID,
		"totp":       code,
	}

	var data sessionData
	if err := c.post(ctx, loginPath, req, "", &data); err != nil {
		return nil, err
	}
	if data.AccessToken == "" || data.FeedToken == "" {
		return nil, errors.New("livefeed: login succeeded but tokens missing in response")
	}

	log.Printf("[livefeed] session established for account %s", c.cfg.AccountID)
	return &Session{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Renew exchanges a refresh token for a new token set without a TOTP
// round-trip. Falls back to ErrAuthRejected when the refresh token has
// itself expired, in which case a full Login is needed.
func (c *SessionClient) Renew(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrAuthRejected
	}

	req := map[string]string{
		"account_id":    c.cfg.AccountID,
		"refresh_token": refreshToken,
	}

	var data sessionData
	if err := c.post(ctx, renewPath, req, "", &data); err != nil {
		return nil, err
	}
	if data.AccessToken == "" || data.FeedToken == "" {
		return nil, errors.New("livefeed: renew succeeded but tokens missing in response")
	}

	log.Printf("[livefeed] session renewed for account %s", c.cfg.AccountID)
	return &Session{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// post sends a JSON request and decodes the enveloped response into out.
func (c *SessionClient) post(ctx context.Context, path string, body interface{}, authToken string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("livefeed: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("livefeed: build request: %w", err)
	}
	c.setHeaders(httpReq, authToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("livefeed: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("%w (HTTP %d)", ErrAuthRejected, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("livefeed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("livefeed: %s: HTTP %d: %s", path, resp.StatusCode, truncate(raw, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("livefeed: decode response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("livefeed: %s rejected: %s (%s)", path, env.Message, env.ErrorCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("livefeed: decode response data: %w", err)
		}
	}
	return nil
}

func (c *SessionClient) setHeaders(req *http.Request, authToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("X-Account-ID", c.cfg.AccountID)
	req.Header.Set("X-Client-IP", c.localIP)
	req.Header.Set("X-Source-ID", "api")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
}

// localIP returns the machine's outbound IP, required by the vendor for
// session audit headers. Falls back to loopback when offline.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
