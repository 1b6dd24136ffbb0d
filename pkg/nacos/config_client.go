package nacos

import (
	"context"

	"github.com/nacos-go/nacos-client-go/internal/config"
	"github.com/nacos-go/nacos-client-go/internal/model"
)

// ConfigKey re-exports the internal config key so callers never import
// internal/model directly.
type ConfigKey = model.ConfigKey

// ConfigListener is invoked with a subscribed key's full new content
// whenever it changes (spec §4.6).
type ConfigListener = config.Listener

// ConfigClient is the public configuration façade (spec §1).
type ConfigClient struct {
	client *Client
}

// NewConfigClient builds a connection and its configuration engine, and
// starts the v1 long-poll loop if cfg selects v1 (spec §1, §6).
func NewConfigClient(ctx context.Context, cfg ClientConfig) (*ConfigClient, error) {
	mgr, router, err := newManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine := config.New(mgr, cfg.tenant(), cfg.Logger)
	router.setConfig(engine)
	mgr.OnReady(engine.ResyncAll)
	engine.Run()

	return &ConfigClient{client: &Client{mgr: mgr, router: router, cfgEngine: engine}}, nil
}

// Key builds a ConfigKey, defaulting Group to model.DefaultGroup when left
// empty; Tenant is resolved against this client's configured tenant by
// every method below if left empty here.
func (c *ConfigClient) Key(dataID, group, tenant string) ConfigKey {
	return model.NewConfigKey(dataID, group, tenant)
}

// GetConfig fetches key's current content directly from the cluster.
func (c *ConfigClient) GetConfig(ctx context.Context, key ConfigKey) (string, error) {
	return c.client.cfgEngine.GetConfig(ctx, key)
}

// SetConfig publishes content to key.
func (c *ConfigClient) SetConfig(ctx context.Context, key ConfigKey, content string) error {
	return c.client.cfgEngine.SetConfig(ctx, key, content)
}

// DeleteConfig removes key from the cluster.
func (c *ConfigClient) DeleteConfig(ctx context.Context, key ConfigKey) error {
	return c.client.cfgEngine.DeleteConfig(ctx, key)
}

// Subscribe registers listener for key, invoking it once synchronously with
// the current content before returning (spec §4.6).
func (c *ConfigClient) Subscribe(ctx context.Context, key ConfigKey, listener ConfigListener) (uint64, error) {
	return c.client.cfgEngine.Subscribe(ctx, key, listener)
}

// Unsubscribe removes the listener registered under id for key.
func (c *ConfigClient) Unsubscribe(ctx context.Context, key ConfigKey, id uint64) {
	c.client.cfgEngine.Unsubscribe(ctx, key, id)
}

// SubscribeAll bulk-subscribes listener to every key in keys, returning each
// key's subscription id in the same order. It stops and returns the error
// from the first key that fails, leaving every key subscribed successfully
// before it in place (spec §11 supplemented feature: bulk bootstrap of a
// known config set, the same shape as iterating a namespace's config list
// and subscribing to each entry).
func (c *ConfigClient) SubscribeAll(ctx context.Context, keys []ConfigKey, listener ConfigListener) ([]uint64, error) {
	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		id, err := c.Subscribe(ctx, key, listener)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close stops the long-poll loop (if running) and the underlying connection.
func (c *ConfigClient) Close() {
	c.client.Close()
}
