package nacos

import (
	"context"

	"github.com/nacos-go/nacos-client-go/internal/model"
	"github.com/nacos-go/nacos-client-go/internal/naming"
)

// ServiceKey re-exports the internal naming key so callers never import
// internal/model directly.
type ServiceKey = model.ServiceKey

// Instance re-exports the internal instance type.
type Instance = model.Instance

// ServiceListener is invoked whenever a subscribed service's instance list
// changes (spec §4.8).
type ServiceListener = naming.ServiceListener

// NamingClient is the public service-discovery façade (spec §1).
type NamingClient struct {
	client *Client
}

// NewNamingClient builds a connection and its naming register/listener
// pair, and starts the v1 heartbeat and UDP-push loops if cfg selects v1
// (spec §1, §6).
func NewNamingClient(ctx context.Context, cfg ClientConfig) (*NamingClient, error) {
	mgr, router, err := newManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	register := naming.NewRegister(mgr, cfg.Logger)
	mgr.OnReady(register.ResyncAll)
	register.Run()

	listener, err := naming.NewListener(mgr, cfg.clientIP(), cfg.Logger)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	router.setNaming(listener)
	mgr.OnReady(listener.ResyncAll)
	listener.Run()

	return &NamingClient{client: &Client{mgr: mgr, router: router, register: register, listener: listener}}, nil
}

// NewStandalone builds a naming-only client: no configuration engine is
// created at all, the same shape as standing up many independent
// connections purely to register instances (spec §11 supplemented feature).
// It is currently identical to NewNamingClient; the name exists so callers
// reaching only for discovery/registration don't need to reason about the
// configuration engine this package also offers.
func NewStandalone(ctx context.Context, cfg ClientConfig) (*NamingClient, error) {
	return NewNamingClient(ctx, cfg)
}

// Key builds a ServiceKey, defaulting GroupName to model.DefaultGroup and
// NamespaceID to model.DefaultNamespace when left empty.
func (c *NamingClient) Key(namespaceID, groupName, serviceName string) ServiceKey {
	return model.NewServiceKey(namespaceID, groupName, serviceName)
}

// Register registers inst with the cluster and begins heartbeating it
// under v1 (spec §4.7).
func (c *NamingClient) Register(ctx context.Context, inst Instance) error {
	return c.client.register.Register(ctx, inst)
}

// Deregister removes inst from the cluster.
func (c *NamingClient) Deregister(ctx context.Context, inst Instance) error {
	return c.client.register.Deregister(ctx, inst)
}

// QueryInstances fetches key's current instance list directly, applying
// client-side weight/health/cluster filtering (spec §4.8).
func (c *NamingClient) QueryInstances(ctx context.Context, key ServiceKey, clusters string, healthyOnly bool) ([]Instance, error) {
	return c.client.listener.QueryInstances(ctx, key, clusters, healthyOnly)
}

// Subscribe registers listener for key's instance list. Returns an id usable
// with Unsubscribe.
func (c *NamingClient) Subscribe(ctx context.Context, key ServiceKey, clusters string, healthyOnly bool, listener ServiceListener) (uint64, error) {
	return c.client.listener.Subscribe(ctx, key, clusters, healthyOnly, listener)
}

// Unsubscribe removes the listener registered under id for key.
func (c *NamingClient) Unsubscribe(ctx context.Context, key ServiceKey, id uint64) {
	c.client.listener.Unsubscribe(ctx, key, id)
}

// SelectInstance draws one instance from hosts by weighted random selection
// (spec §4.8).
func (c *NamingClient) SelectInstance(hosts []Instance) (Instance, error) {
	return c.client.listener.SelectInstance(hosts)
}

// Close stops the heartbeat/UDP-push loops (best-effort deregistering every
// owned instance) and the underlying connection.
func (c *NamingClient) Close() {
	c.client.Close()
}
