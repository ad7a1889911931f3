// Package upstreamclient talks to the hosting control panel that owns
// zones before they reach this daemon: listing its domains and
// registering this node as an extra DNS server. It tries a structured
// JSON response first and falls back to the legacy flat-text format
// the same endpoints return on older control-panel versions (grounded
// on the teacher pack's decode-then-transform client shape).
package upstreamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zonecourier/zonecourier/internal/config"
)

// Domain is one zone as reported by an upstream control-panel listing.
type Domain struct {
	Name     string `json:"domain"`
	Username string `json:"username"`
}

// Credentials identifies this node when registering itself with an
// upstream as an extra DNS server.
type Credentials struct {
	Username string
	Password string
}

// Client lists an upstream's owned domains and registers this node as
// an extra DNS server for it.
type Client interface {
	ListDomains(ctx context.Context, page int) ([]Domain, bool, error)
	Get(ctx context.Context, command string, params url.Values) ([]byte, error)
	EnsureExtraDNSServer(ctx context.Context, selfURL string, creds Credentials) error
}

type httpClient struct {
	baseURL    string
	username   string
	password   string
	pageSize   int
	http       *http.Client
	sessionJar string // cookie value from a successful session-login, empty until needed
}

// New builds a Client for one upstream server entry.
func New(cfg config.UpstreamServerConfig, timeout time.Duration, pageSize int) Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &httpClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
	}
}

// domainListResponse is the structured JSON shape tried first.
type domainListResponse struct {
	Domains []Domain `json:"domains"`
	HasMore bool     `json:"has_more"`
}

// ListDomains fetches one page of domains owned by this upstream.
// Tries the structured JSON decode first; on decode failure, falls
// back to the legacy newline-delimited "domain=user" text format.
func (c *httpClient) ListDomains(ctx context.Context, page int) ([]Domain, bool, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("per_page", fmt.Sprintf("%d", c.pageSize))

	body, err := c.Get(ctx, "CMD_API_SHOW_DOMAINS", params)
	if err != nil {
		return nil, false, err
	}

	var structured domainListResponse
	if err := json.Unmarshal(body, &structured); err == nil {
		return structured.Domains, structured.HasMore, nil
	}

	domains := parseLegacyDomainList(body)
	// Legacy format has no pagination marker; one short page ends the listing.
	hasMore := len(domains) >= c.pageSize
	return domains, hasMore, nil
}

// parseLegacyDomainList decodes the flat "domain=user\n..." text format
// older control panels return instead of JSON.
func parseLegacyDomainList(body []byte) []Domain {
	var domains []Domain
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, user, _ := strings.Cut(line, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		domains = append(domains, Domain{Name: name, Username: strings.TrimSpace(user)})
	}
	return domains
}

// Get issues an authenticated GET against one upstream command,
// retrying once with a session-cookie login on a 401.
func (c *httpClient) Get(ctx context.Context, command string, params url.Values) ([]byte, error) {
	body, status, err := c.doGet(ctx, command, params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if loginErr := c.sessionLogin(ctx); loginErr != nil {
			return nil, fmt.Errorf("upstream auth failed and session login retry failed: %w", loginErr)
		}
		body, status, err = c.doGet(ctx, command, params)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("upstream %s: unexpected status %d", command, status)
	}
	return body, nil
}

func (c *httpClient) doGet(ctx context.Context, command string, params url.Values) ([]byte, int, error) {
	u := c.baseURL + "/" + strings.TrimLeft(command, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request for %s: %w", command, err)
	}
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", command, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body for %s: %w", command, err)
	}
	return body, resp.StatusCode, nil
}

func (c *httpClient) authenticate(req *http.Request) {
	if c.sessionJar != "" {
		req.Header.Set("Cookie", c.sessionJar)
		return
	}
	req.SetBasicAuth(c.username, c.password)
}

// sessionLogin falls back to a session-cookie login for upstream
// versions that no longer accept basic auth on the API endpoints.
func (c *httpClient) sessionLogin(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/CMD_LOGIN", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected: status %d", resp.StatusCode)
	}
	for _, cookie := range resp.Cookies() {
		c.sessionJar = cookie.String()
		return nil
	}
	return fmt.Errorf("login succeeded but no session cookie was returned")
}

// EnsureExtraDNSServer registers selfURL as an additional DNS server
// for this upstream, idempotently, with dns=yes and domain_check=yes
// always asserted.
func (c *httpClient) EnsureExtraDNSServer(ctx context.Context, selfURL string, creds Credentials) error {
	form := url.Values{}
	form.Set("action", "add")
	form.Set("name", selfURL)
	form.Set("dns", "yes")
	form.Set("domain_check", "yes")
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/CMD_API_EXTRA_DNS_SERVERS", bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return fmt.Errorf("build extra-dns-server request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("register extra dns server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register extra dns server: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
