// Package conn owns the one active transport pair a client holds at a time:
// the endpoint pool, the auth agent, and the breaker-gated failover that
// ties them together (spec §4.1, §4.2, §4.5). It is the client's single
// point of contact with the cluster; the config and naming engines never
// dial a host directly.
package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/nacos-go/nacos-client-go/internal/auth"
	"github.com/nacos-go/nacos-client-go/internal/breaker"
	"github.com/nacos-go/nacos-client-go/internal/endpoint"
	"github.com/nacos-go/nacos-client-go/internal/errorsx"
	"github.com/nacos-go/nacos-client-go/internal/metrics"
	"github.com/nacos-go/nacos-client-go/internal/model"
	"github.com/nacos-go/nacos-client-go/internal/transport"
)

// Mode selects the wire protocol used for the long-lived notification
// channel and for request dispatch (spec §4.3, §4.4).
type Mode int

const (
	ModeHTTP Mode = iota // v1: long-poll + UDP push
	ModeGRPC             // v2: bidi stream
)

// authTickInterval is how often the manager calls the auth agent's
// proactive refresh check (spec §4.2: "a background tick every 30s
// refreshes if expiry_ms < now + 60s").
const authTickInterval = 30 * time.Second

// Config parameterises a Manager.
type Config struct {
	Hosts        []model.HostInfo
	Mode         Mode
	Auth         auth.Info
	ClientIP     string
	Log          *zap.Logger
	Breaker      breaker.Config
	OnNotify     transport.NotifyHandler // dispatches both config and naming notifications, keyed on Payload.Metadata.Type
	GRPCDialOpts []grpc.DialOption       // test hook (e.g. bufconn dialer); production dials real TCP
}

// Manager holds the endpoint pool plus whichever single transport is
// currently active, and performs failover when that transport's breaker
// trips (spec §4.5).
type Manager struct {
	endpoints *endpoint.Set
	mode      Mode
	authAgent *auth.Agent
	clientIP  string
	log       *zap.Logger
	onNotify  transport.NotifyHandler
	dialOpts  []grpc.DialOption

	mu      sync.RWMutex
	active  int
	http    *transport.HTTP
	grpcT   *transport.GRPC
	onReady []func(ctx context.Context) // re-subscription hooks run after every (re)activation

	// breakerMu serializes access to endpoints.Breaker(idx), which is not
	// itself safe for concurrent use (internal/breaker's contract assumes a
	// single caller); dispatch calls and the gRPC transport's own failure
	// callback can race without it.
	breakerMu sync.Mutex

	closing chan struct{}
	wg      sync.WaitGroup
}

// New builds a Manager and activates an initial host. The call blocks
// until the first transport (HTTP always; gRPC too when Mode is ModeGRPC)
// is ready.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	endpoints, err := endpoint.New(cfg.Hosts, cfg.Breaker)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		endpoints: endpoints,
		mode:      cfg.Mode,
		clientIP:  cfg.ClientIP,
		log:       cfg.Log,
		onNotify:  cfg.OnNotify,
		dialOpts:  cfg.GRPCDialOpts,
		closing:   make(chan struct{}),
	}
	m.authAgent = auth.New(cfg.Auth, m.activeHTTPAddr, cfg.Log)

	idx := endpoints.Select()
	if err := m.activate(ctx, idx); err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go m.authRefreshLoop()

	return m, nil
}

// authRefreshLoop calls the auth agent's Tick every authTickInterval for
// the manager's lifetime, proactively refreshing a token nearing expiry
// (spec §4.2) regardless of whether any request happens to need one in
// that window.
func (m *Manager) authRefreshLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(authTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closing:
			return
		case <-ticker.C:
			m.authAgent.Tick(context.Background())
		}
	}
}

// OnReady registers a hook invoked once activation succeeds, including
// after every failover. Engines use it to re-issue subscriptions against
// the new active host (spec §4.5's "replay outstanding subscriptions").
func (m *Manager) OnReady(fn func(ctx context.Context)) {
	m.mu.Lock()
	m.onReady = append(m.onReady, fn)
	m.mu.Unlock()
}

// Mode reports the wire protocol in use.
func (m *Manager) Mode() Mode { return m.mode }

// Auth exposes the shared token source (used by the config/naming engines'
// own diagnostic calls, and by tests).
func (m *Manager) Auth() *auth.Agent { return m.authAgent }

// ActiveHost returns the currently active endpoint.
func (m *Manager) ActiveHost() model.HostInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoints.Host(m.active)
}

func (m *Manager) activeHTTPAddr() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.http == nil {
		return "", false
	}
	return m.endpoints.Host(m.active).Addr(), true
}

// activate tears down any existing transports and brings up new ones
// against endpoints index idx.
func (m *Manager) activate(ctx context.Context, idx int) error {
	host := m.endpoints.Host(idx)

	m.mu.Lock()
	if m.grpcT != nil {
		_ = m.grpcT.Close()
		m.grpcT = nil
	}
	m.mu.Unlock()

	httpT := transport.NewHTTP(host.Addr(), m.authAgent, m.log)

	var grpcT *transport.GRPC
	if m.mode == ModeGRPC {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		g, err := transport.NewGRPC(dialCtx, transport.Config{
			Addr:      host.GRPCAddr(),
			ClientIP:  m.clientIP,
			Tokens:    m.authAgent,
			OnNotify:  m.onNotify,
			OnFailure: func(err error) {
				m.breakerMu.Lock()
				m.endpoints.Breaker(idx).RecordFailure()
				m.breakerMu.Unlock()
				m.failover(idx, err)
			},
			Log:       m.log,
			DialOpts:  m.dialOpts,
		})
		if err != nil {
			return errorsx.New(errorsx.KindTransport, "activate", err)
		}
		grpcT = g
	}

	m.mu.Lock()
	m.active = idx
	m.http = httpT
	m.grpcT = grpcT
	hooks := append([]func(ctx context.Context){}, m.onReady...)
	m.mu.Unlock()

	metrics.SetActiveHost(host.Addr(), m.knownHostAddrs())

	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

func (m *Manager) knownHostAddrs() []string {
	addrs := make([]string, m.endpoints.Len())
	for i := range addrs {
		addrs[i] = m.endpoints.Host(i).Addr()
	}
	return addrs
}

// failover excludes idx from the weighted draw, activates a different host,
// and restores idx's weight once the new host is live (spec §4.5). Callers
// are responsible for recording the triggering failure against idx's
// breaker before calling this; failover itself only moves the active host.
func (m *Manager) failover(idx int, err error) {
	m.log.Warn("active host failed, failing over", zap.Int("host_index", idx), zap.Error(err))
	metrics.BreakerTripsTotal.WithLabelValues(m.endpoints.Host(idx).Addr()).Inc()
	metrics.BreakerOpen.WithLabelValues(m.endpoints.Host(idx).Addr()).Set(1)
	m.endpoints.ExcludeTemporarily(idx)

	next := m.endpoints.Next(idx)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if aerr := m.activate(ctx, next); aerr != nil {
		m.log.Warn("failover activation failed", zap.Error(aerr))
		return
	}
	metrics.FailoversTotal.Inc()
	metrics.BreakerOpen.WithLabelValues(m.endpoints.Host(idx).Addr()).Set(0)
	m.endpoints.RestoreWeight(idx)
}

// Request dispatches one v1 HTTP call (GET/POST/PUT/DELETE), recording the
// outcome against the active host's breaker (spec §4.1, §4.5).
func (m *Manager) Request(ctx context.Context, method, path string, query, form map[string][]string, timeout time.Duration) ([]byte, error) {
	m.mu.RLock()
	idx := m.active
	httpT := m.http
	m.mu.RUnlock()

	br := m.endpoints.Breaker(idx)
	m.breakerMu.Lock()
	canTry := br.CanTry()
	m.breakerMu.Unlock()
	if !canTry {
		return nil, errorsx.New(errorsx.KindTransport, method+" "+path, fmt.Errorf("breaker open for host %d", idx))
	}

	var (
		raw []byte
		err error
	)
	switch method {
	case "GET":
		raw, err = httpT.Get(ctx, path, query, timeout)
	case "POST":
		raw, err = httpT.Post(ctx, path, form, timeout)
	case "PUT":
		raw, err = httpT.Put(ctx, path, form, timeout)
	case "DELETE":
		raw, err = httpT.Delete(ctx, path, query, timeout)
	default:
		return nil, fmt.Errorf("conn: unsupported method %q", method)
	}

	m.breakerMu.Lock()
	if err != nil {
		br.RecordFailure()
		tripped := br.Status() != breaker.StatusClosed
		m.breakerMu.Unlock()
		if tripped {
			m.failover(idx, err)
		}
		return nil, err
	}
	br.RecordSuccess()
	m.breakerMu.Unlock()
	return raw, nil
}

// HTTP exposes the active HTTP transport directly, for callers (the
// long-poll loop, UDP push registration) that need header control beyond
// Request's method switch.
func (m *Manager) HTTP() *transport.HTTP {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.http
}

// GRPCRequest dispatches one v2 unary call through the active gRPC
// transport. Returns an error if the manager is not running in ModeGRPC.
func (m *Manager) GRPCRequest(ctx context.Context, typ string, body, out any) error {
	m.mu.RLock()
	idx := m.active
	g := m.grpcT
	m.mu.RUnlock()

	if g == nil {
		return errorsx.New(errorsx.KindUnsupported, typ, fmt.Errorf("manager not running in gRPC mode"))
	}

	br := m.endpoints.Breaker(idx)
	m.breakerMu.Lock()
	canTry := br.CanTry()
	m.breakerMu.Unlock()
	if !canTry {
		return errorsx.New(errorsx.KindTransport, typ, fmt.Errorf("breaker open for host %d", idx))
	}

	if err := g.Request(ctx, typ, body, out); err != nil {
		m.breakerMu.Lock()
		br.RecordFailure()
		tripped := br.Status() != breaker.StatusClosed
		m.breakerMu.Unlock()
		if tripped {
			m.failover(idx, err)
		}
		return err
	}
	m.breakerMu.Lock()
	br.RecordSuccess()
	m.breakerMu.Unlock()
	return nil
}

// Close stops the auth refresh loop and tears down the active transport(s).
func (m *Manager) Close() error {
	close(m.closing)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grpcT != nil {
		return m.grpcT.Close()
	}
	return nil
}

var _ transport.TokenSource = (*auth.Agent)(nil)
