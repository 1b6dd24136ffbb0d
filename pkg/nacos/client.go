package nacos

import (
	"context"
	"sync"

	"github.com/nacos-go/nacos-client-go/internal/conn"
	"github.com/nacos-go/nacos-client-go/internal/config"
	"github.com/nacos-go/nacos-client-go/internal/logging"
	"github.com/nacos-go/nacos-client-go/internal/naming"
	"github.com/nacos-go/nacos-client-go/internal/nacospb"
)

// Client is the shared connection underlying a ConfigClient and/or
// NamingClient: one conn.Manager plus whichever of the two subsystem engines
// the caller asked for (spec §1).
type Client struct {
	mgr    *conn.Manager
	router *notifyRouter

	cfgEngine *config.Engine
	register  *naming.Register
	listener  *naming.Listener
}

// notifyRouter dispatches one inbound v2 payload to whichever engine owns
// its type (spec §4.4, §6). It exists separately from Client because
// conn.Manager.Config.OnNotify must be supplied before the manager — and
// therefore before the engines that depend on it — can be constructed; the
// engines are wired in after the fact via set.
type notifyRouter struct {
	mu     sync.RWMutex
	cfg    *config.Engine
	naming *naming.Listener
}

func (r *notifyRouter) setConfig(e *config.Engine) {
	r.mu.Lock()
	r.cfg = e
	r.mu.Unlock()
}

func (r *notifyRouter) setNaming(l *naming.Listener) {
	r.mu.Lock()
	r.naming = l
	r.mu.Unlock()
}

func (r *notifyRouter) dispatch(ctx context.Context, p *nacospb.Payload) *nacospb.AckResponse {
	r.mu.RLock()
	cfg, nm := r.cfg, r.naming
	r.mu.RUnlock()

	switch p.Metadata.Type {
	case nacospb.TypeConfigChangeNotifyRequest:
		if cfg != nil {
			return cfg.HandleNotify(ctx, p)
		}
	case nacospb.TypeNotifySubscriberRequest:
		if nm != nil {
			return nm.HandleNotify(ctx, p)
		}
	}
	return nil
}

// newManager builds the shared conn.Manager plus its notify router, common
// to both NewConfigClient and NewNamingClient.
func newManager(ctx context.Context, cfg ClientConfig) (*conn.Manager, *notifyRouter, error) {
	hosts, err := cfg.hosts()
	if err != nil {
		return nil, nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	mode := conn.ModeHTTP
	if cfg.useGRPC() {
		mode = conn.ModeGRPC
	}

	router := &notifyRouter{}
	mgr, err := conn.New(ctx, conn.Config{
		Hosts:        hosts,
		Mode:         mode,
		Auth:         cfg.authInfo(),
		ClientIP:     cfg.clientIP(),
		Log:          log,
		Breaker:      cfg.Breaker,
		OnNotify:     router.dispatch,
		GRPCDialOpts: cfg.GRPCDialOpts,
	})
	if err != nil {
		return nil, nil, err
	}
	return mgr, router, nil
}

// Close tears down every subsystem this Client built, then the shared
// connection itself.
func (c *Client) Close() {
	if c.register != nil {
		c.register.Close()
	}
	if c.listener != nil {
		c.listener.Close()
	}
	if c.cfgEngine != nil {
		c.cfgEngine.Close()
	}
	_ = c.mgr.Close()
}
