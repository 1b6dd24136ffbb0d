// Package auth implements the auth agent (spec §4.2): exchanges credentials
// for a bearer token, caches it, and refreshes it before expiry.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/errorsx"
)

// Info holds username/password credentials (spec §3 AuthInfo). A zero Info
// (both fields empty) means auth is disabled.
type Info struct {
	Username string
	Password string
}

func (i Info) Enabled() bool { return i.Username != "" || i.Password != "" }

// token is the cached access token plus its locally-computed deadline.
type token struct {
	accessToken string
	expiryMs    int64 // now + (ttl-5)*1000, refreshed proactively at deadline-60s
}

// HostDialer resolves the host to log in against. The connection manager
// supplies the currently-active host's HTTP address.
type HostDialer func() (addr string, ok bool)

// Agent is the long-lived auth state for one connection manager. Its
// refresh tick and GetToken are both called from the connection manager's
// single execution context (spec §5); no internal locking would be
// strictly required, but Agent also exposes GetToken to other engines'
// contexts, so the cached token is guarded by a mutex (spec §5: two
// shared-state cells cross contexts; this is a third, narrower one: a
// single cached string plus deadline, read far more often than written).
type Agent struct {
	info   Info
	dialer HostDialer
	log    *zap.Logger
	client *http.Client

	mu  sync.RWMutex
	tok *token
}

// New constructs an Agent. log may be nil (a nop logger is substituted).
func New(info Info, dialer HostDialer, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		info:   info,
		dialer: dialer,
		log:    log,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

// Enabled reports whether credentials were configured.
func (a *Agent) Enabled() bool { return a.info.Enabled() }

// GetToken returns the cached access token, refreshing synchronously if it
// is stale or absent. Returns "" without error when auth is disabled
// (spec §4.2).
func (a *Agent) GetToken(ctx context.Context) (string, error) {
	if !a.info.Enabled() {
		return "", nil
	}

	a.mu.RLock()
	t := a.tok
	a.mu.RUnlock()

	nowMs := time.Now().UnixMilli()
	if t != nil && nowMs < t.expiryMs {
		return t.accessToken, nil
	}
	return a.refresh(ctx)
}

// refresh performs a synchronous login and updates the cache.
func (a *Agent) refresh(ctx context.Context) (string, error) {
	addr, ok := a.dialer()
	if !ok {
		return "", errorsx.New(errorsx.KindAuth, "GetToken", fmt.Errorf("no active host to authenticate against"))
	}

	accessToken, ttlMs, err := a.login(ctx, addr)
	if err != nil {
		return "", errorsx.New(errorsx.KindAuth, "login", err)
	}

	expiryMs := time.Now().UnixMilli() + ttlMs - 5000
	if peeked := peekJWTExpiryMs(accessToken); peeked > 0 && peeked < expiryMs {
		// The server-issued token itself expires sooner than its stated
		// ttl; trust the earlier deadline.
		expiryMs = peeked - 60000
	}

	a.mu.Lock()
	a.tok = &token{accessToken: accessToken, expiryMs: expiryMs}
	a.mu.Unlock()

	return accessToken, nil
}

// Tick should be invoked roughly every 30s by the connection manager's
// timer loop (spec §4.2); it refreshes proactively when the cached token
// is within 60s of expiry.
func (a *Agent) Tick(ctx context.Context) {
	if !a.info.Enabled() {
		return
	}
	a.mu.RLock()
	t := a.tok
	a.mu.RUnlock()

	nowMs := time.Now().UnixMilli()
	if t != nil && nowMs < t.expiryMs-60000 {
		return
	}
	if _, err := a.refresh(ctx); err != nil {
		a.log.Warn("auth token refresh failed, retrying next tick", zap.Error(err))
	}
}

// loginResponse mirrors the /nacos/v1/auth/login JSON response.
type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenTTL    int64  `json:"tokenTtl"`
}

func (a *Agent) login(ctx context.Context, addr string) (string, int64, error) {
	form := url.Values{}
	form.Set("username", a.info.Username)
	form.Set("password", a.info.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/nacos/v1/auth/login", addr), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("auth login: status %d: %s", resp.StatusCode, string(body))
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", 0, fmt.Errorf("auth login: decode response: %w", err)
	}
	return lr.AccessToken, lr.TokenTTL * 1000, nil
}

// peekJWTExpiryMs decodes (without verifying signature — the client has no
// way to check the cluster's signing key) a JWT-shaped access token's "exp"
// claim, returning 0 if the token isn't a parseable JWT or carries no exp.
func peekJWTExpiryMs(accessToken string) int64 {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return 0
	}
	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return 0
	}
	return int64(expFloat) * 1000
}
