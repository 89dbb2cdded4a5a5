// Package kiteconnect is a minimal Kite Connect v3 client covering the
// surface this engine needs: session management, LTP quotes, and historical
// candles, plus the streaming Ticker in ticker.go. Prices cross the boundary
// in rupees and are converted to paise here.
package kiteconnect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	defaultRoot    = "https://api.kite.trade"
	defaultLogin   = "https://kite.zerodha.com/connect/login"
	defaultTimeout = 7 * time.Second
	kiteVersion    = "3"
)

var routes = map[string]string{
	"api.token":      "/session/token",
	"api.token.del":  "/session/token",
	"user.profile":   "/user/profile",
	"user.margins":   "/user/margins",
	"market.ltp":     "/quote/ltp",
	"market.quote":   "/quote",
	"market.ohlc":    "/quote/ohlc",
	"market.history": "/instruments/historical/%d/%s",
	"market.dump":    "/instruments/%s",
}

// Config for the REST client.
type Config struct {
	APIKey      string
	APISecret   string
	AccessToken string

	// TOTPSecret enables GenerateTOTP for the two-factor login step.
	TOTPSecret string

	RootURL     string        // default https://api.kite.trade
	Timeout     time.Duration // default 7s
	SessionFile string        // token persistence path, e.g. "data/kite_session.json"
	Debug       bool
}

// Client is the Kite Connect REST client.
type Client struct {
	apiKey      string
	apiSecret   string
	accessToken string
	totpSecret  string

	rootURL     string
	sessionFile string
	debug       bool

	httpClient *http.Client

	// SessionExpiryHook fires on a 403 TokenException so the caller can
	// trigger a re-login.
	SessionExpiryHook func()
}

// session is the persisted daily token record.
type session struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	AccessToken string `json:"access_token"`
	LoginTime   string `json:"login_time"`
	APIKey      string `json:"api_key"`
}

// New builds a client and loads a persisted session if one is still valid
// today (Kite tokens expire daily).
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		accessToken: cfg.AccessToken,
		totpSecret:  cfg.TOTPSecret,
		rootURL:     strings.TrimRight(cfg.RootURL, "/"),
		sessionFile: cfg.SessionFile,
		debug:       cfg.Debug,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
	if c.accessToken == "" && c.sessionFile != "" {
		c.loadSession()
	}
	return c
}

// LoginURL returns the Kite Connect login URL for the browser flow.
func (c *Client) LoginURL() string {
	return defaultLogin + "?api_key=" + url.QueryEscape(c.apiKey) + "&v=" + kiteVersion
}

// AccessToken returns the current access token ("" when logged out).
func (c *Client) AccessToken() string { return c.accessToken }

// SetAccessToken installs a token obtained elsewhere.
func (c *Client) SetAccessToken(token string) { c.accessToken = token }

// GenerateTOTP returns the current two-factor code for the configured
// secret. Used by automated login flows.
func (c *Client) GenerateTOTP() (string, error) {
	if c.totpSecret == "" {
		return "", fmt.Errorf("kiteconnect: no TOTP secret configured")
	}
	return totp.GenerateCode(c.totpSecret, time.Now())
}

// GenerateSession exchanges a request token for an access token. The
// checksum is SHA-256 over api_key + request_token + api_secret.
func (c *Client) GenerateSession(requestToken string) (map[string]interface{}, error) {
	h := sha256.Sum256([]byte(c.apiKey + requestToken + c.apiSecret))
	checksum := hex.EncodeToString(h[:])

	out, err := c.postForm("api.token", url.Values{
		"api_key":       {c.apiKey},
		"request_token": {requestToken},
		"checksum":      {checksum},
	})
	if err != nil {
		return nil, err
	}

	data, _ := out["data"].(map[string]interface{})
	token, _ := data["access_token"].(string)
	if token == "" {
		return out, fmt.Errorf("kiteconnect: no access_token in session response")
	}
	c.accessToken = token

	if c.sessionFile != "" {
		userID, _ := data["user_id"].(string)
		userName, _ := data["user_name"].(string)
		c.saveSession(session{
			UserID:      userID,
			UserName:    userName,
			AccessToken: token,
			LoginTime:   time.Now().Format(time.RFC3339),
			APIKey:      c.apiKey,
		})
	}
	return out, nil
}

// InvalidateSession logs out and deletes the persisted token.
func (c *Client) InvalidateSession() error {
	_, err := c.doRequest(context.Background(), http.MethodDelete, c.buildURL("api.token.del")+
		"?api_key="+url.QueryEscape(c.apiKey)+
		"&access_token="+url.QueryEscape(c.accessToken), nil)
	c.accessToken = ""
	if c.sessionFile != "" {
		os.Remove(c.sessionFile)
	}
	return err
}

// Profile fetches the logged-in user profile.
func (c *Client) Profile() (map[string]interface{}, error) {
	out, err := c.get(context.Background(), "user.profile", nil)
	if err != nil {
		return nil, err
	}
	data, _ := out["data"].(map[string]interface{})
	return data, nil
}

// Authenticated reports whether an access token is installed.
func (c *Client) Authenticated() bool { return c.accessToken != "" }

func (c *Client) saveSession(s session) {
	os.MkdirAll(filepath.Dir(c.sessionFile), 0o755)
	b, _ := json.MarshalIndent(s, "", "  ")
	if err := os.WriteFile(c.sessionFile, b, 0o600); err != nil {
		log.Printf("[kite] save session: %v", err)
		return
	}
	log.Printf("[kite] session saved to %s", c.sessionFile)
}

func (c *Client) loadSession() {
	b, err := os.ReadFile(c.sessionFile)
	if err != nil {
		return
	}
	var s session
	if err := json.Unmarshal(b, &s); err != nil {
		return
	}
	loginTime, err := time.Parse(time.RFC3339, s.LoginTime)
	if err != nil || time.Now().YearDay() != loginTime.YearDay() || time.Now().Year() != loginTime.Year() {
		log.Printf("[kite] persisted session expired, re-login required")
		os.Remove(c.sessionFile)
		return
	}
	c.accessToken = s.AccessToken
	log.Printf("[kite] restored session for %s", s.UserID)
}

// ---- HTTP plumbing ----

func (c *Client) buildURL(route string, args ...interface{}) string {
	return c.rootURL + fmt.Sprintf(routes[route], args...)
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Kite-Version", kiteVersion)
	if c.accessToken != "" {
		h.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}
	return h
}

func (c *Client) get(ctx context.Context, route string, query url.Values, args ...interface{}) (map[string]interface{}, error) {
	u := c.buildURL(route, args...)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, u, nil)
}

func (c *Client) postForm(route string, form url.Values) (map[string]interface{}, error) {
	return c.doRequest(context.Background(), http.MethodPost, c.buildURL(route), strings.NewReader(form.Encode()))
}

func (c *Client) doRequest(ctx context.Context, method, fullURL string, body io.Reader) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if c.debug {
		log.Printf("[kite] %s %s", method, fullURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: %s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("kiteconnect: bad JSON (status %d): %w", resp.StatusCode, err)
	}

	if status, _ := out["status"].(string); status == "error" {
		errType, _ := out["error_type"].(string)
		msg, _ := out["message"].(string)
		if resp.StatusCode == http.StatusForbidden && errType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return out, fmt.Errorf("kiteconnect: %s: %s", errType, msg)
	}
	return out, nil
}

// rupeesToPaise converts an upstream float price to int64 paise.
func rupeesToPaise(v float64) int64 {
	return int64(math.Round(v * 100))
}
