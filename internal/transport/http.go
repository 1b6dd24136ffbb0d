// Package transport implements the two dispatch mechanisms a connection
// manager may hold active: a stateless HTTP/1.1 client (spec §4.3) and a
// gRPC channel that connects when it is created (spec §4.4).
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/errorsx"
	"github.com/nacos-go/nacos-client-go/internal/util"
)

// DefaultTimeout is the per-request default (spec §4.3).
const DefaultTimeout = 3 * time.Second

// TokenSource supplies the current bearer token, or "" when auth is
// disabled (implemented by internal/auth.Agent).
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// HTTP is a stateless client wrapping GET/POST/PUT/DELETE against one base
// address. A new HTTP is created per active host (spec §4.5's "reinitialize
// transports" step); the client itself holds no per-request state.
type HTTP struct {
	baseAddr string // "ip:port", no scheme
	tokens   TokenSource
	log      *zap.Logger
	client   *http.Client
}

// NewHTTP constructs an HTTP transport bound to one host.
func NewHTTP(baseAddr string, tokens TokenSource, log *zap.Logger) *HTTP {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTP{
		baseAddr: baseAddr,
		tokens:   tokens,
		log:      log,
		client:   &http.Client{},
	}
}

// Get issues a GET against path (e.g. "/nacos/v1/cs/configs") with query
// params, returning the decoded body.
func (h *HTTP) Get(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	return h.do(ctx, http.MethodGet, path, params, nil, timeout)
}

// Post issues a POST with a url-encoded form body.
func (h *HTTP) Post(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	return h.do(ctx, http.MethodPost, path, nil, params, timeout)
}

// Put issues a PUT with a url-encoded form body.
func (h *HTTP) Put(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	return h.do(ctx, http.MethodPut, path, nil, params, timeout)
}

// Delete issues a DELETE with query params.
func (h *HTTP) Delete(ctx context.Context, path string, params url.Values, timeout time.Duration) ([]byte, error) {
	return h.do(ctx, http.MethodDelete, path, params, nil, timeout)
}

// PostWithHeader is Post plus one extra request header (used by the config
// engine's long-poll listen call, which sets Long-Pulling-Timeout).
func (h *HTTP) PostWithHeader(ctx context.Context, path string, form url.Values, header map[string]string, timeout time.Duration) ([]byte, error) {
	return h.doWithHeader(ctx, http.MethodPost, path, nil, form, header, timeout)
}

func (h *HTTP) do(ctx context.Context, method, path string, query, form url.Values, timeout time.Duration) ([]byte, error) {
	return h.doWithHeader(ctx, method, path, query, form, nil, timeout)
}

func (h *HTTP) doWithHeader(ctx context.Context, method, path string, query, form url.Values, header map[string]string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	token, err := h.tokens.GetToken(ctx)
	if err != nil {
		// Per spec §7: proceed without a token; the server rejects if it
		// must, surfacing as a transport error below.
		h.log.Warn("auth token unavailable, proceeding without it", zap.Error(err))
		token = ""
	}
	if query == nil {
		query = url.Values{}
	}
	if token != "" {
		query.Set("accessToken", token)
	}

	u := fmt.Sprintf("http://%s%s", h.baseAddr, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, u, bodyReader)
	if err != nil {
		return nil, errorsx.New(errorsx.KindProtocol, method+" "+path, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, errorsx.New(errorsx.KindTimeout, method+" "+path, err)
		}
		return nil, errorsx.New(errorsx.KindTransport, method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.New(errorsx.KindTransport, method+" "+path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorsx.New(errorsx.KindTransport, method+" "+path, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	return util.GzDecode(raw), nil
}
