// Package config implements the configuration subsystem (spec §4.6): a
// map of subscribed ConfigKeys, a v1 long-poll loop or v2 gRPC subscribe
// feed, and per-key listener dispatch.
package config

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/conn"
	"github.com/nacos-go/nacos-client-go/internal/errorsx"
	"github.com/nacos-go/nacos-client-go/internal/metrics"
	"github.com/nacos-go/nacos-client-go/internal/model"
	"github.com/nacos-go/nacos-client-go/internal/nacospb"
)

// Listener is invoked with the full new content string whenever a
// subscribed key changes (spec §4.6: "always ... the full new content
// string, not a diff").
type Listener func(content string)

// DefaultLongPollTimeout is the v1 listen call's server-side wait budget.
const DefaultLongPollTimeout = 30 * time.Second

// reschedulePause is the gap between consecutive v1 long-poll iterations.
const reschedulePause = 5 * time.Millisecond

type idListener struct {
	id uint64
	fn Listener
}

// entry is one subscribed key's engine-private state (spec §3
// ConfigEntry).
type entry struct {
	key       model.ConfigKey
	md5       string
	listeners []idListener
}

// Engine owns the subscribed-key map and its notification loop. All
// mutating methods are safe for concurrent use; the spec's single
// cooperative execution context (§5) is modeled here as one mutex rather
// than a dedicated goroutine-with-channel, since the engine's operations
// (subscribe/unsubscribe/get/set/delete) are simple enough not to need
// message-passing to stay ordered — only the long-poll loop itself runs on
// its own goroutine.
type Engine struct {
	mgr    *conn.Manager
	tenant string
	log    *zap.Logger

	mu      sync.Mutex
	entries map[model.ConfigKey]*entry
	nextID  uint64

	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// New builds an Engine bound to mgr. Run must be called once to start the
// v1 long-poll loop (a no-op under v2, where notifications arrive via
// HandleNotify).
func New(mgr *conn.Manager, tenant string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		mgr:     mgr,
		tenant:  tenant,
		log:     log,
		entries: make(map[model.ConfigKey]*entry),
		closing: make(chan struct{}),
	}
}

// Run starts the v1 long-poll loop in the background. Under v2 it returns
// immediately; the manager's OnNotify callback delivers change pushes to
// HandleNotify instead.
func (e *Engine) Run() {
	if e.mgr.Mode() != conn.ModeHTTP {
		return
	}
	e.wg.Add(1)
	go e.longPollLoop()
}

// Close stops the long-poll loop and waits for it to exit (spec §5: a
// Close message with no grace period for the config engine, unlike the
// naming register's unregister grace window).
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.closing)
	e.wg.Wait()
}

// ResyncAll re-sends an add=true batch listen for every currently
// subscribed key using its last-known md5 (spec §4.5's failover step:
// "re-subscribe every config key ... using the current known md5"). It is
// a no-op under v1, where the long-poll loop naturally rebuilds its body
// from the live entry map every iteration. Intended to be registered via
// conn.Manager.OnReady.
func (e *Engine) ResyncAll(ctx context.Context) {
	if e.mgr.Mode() != conn.ModeGRPC {
		return
	}
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		entries = append(entries, ent)
	}
	e.mu.Unlock()

	for _, ent := range entries {
		if err := e.sendBatchListen(ctx, ent, true); err != nil {
			e.log.Warn("config resubscribe after failover failed", zap.Error(err))
		}
	}
}

// resolveTenant fills key.Tenant from the engine's configured tenant when
// the caller left it blank, so every request is implicitly namespaced (spec
// §1 facade description) without every call site repeating the builder's
// tenant.
func (e *Engine) resolveTenant(key model.ConfigKey) model.ConfigKey {
	if key.Tenant == "" {
		key.Tenant = e.tenant
	}
	return key
}

// GetConfig fetches a key's current content directly from the cluster,
// bypassing the subscribed-key cache.
func (e *Engine) GetConfig(ctx context.Context, key model.ConfigKey) (string, error) {
	key = e.resolveTenant(key)
	if e.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.ConfigQueryRequest{DataID: key.DataID, Group: key.Group, Tenant: key.Tenant}
		var resp nacospb.ConfigQueryResponse
		if err := e.mgr.GRPCRequest(ctx, nacospb.TypeConfigQueryRequest, req, &resp); err != nil {
			return "", err
		}
		if !resp.Success {
			return "", errorsx.New(errorsx.KindNotFound, "GetConfig", fmt.Errorf("%s", resp.ErrorMsg))
		}
		return resp.Content, nil
	}

	raw, err := e.mgr.Request(ctx, "GET", "/nacos/v1/cs/configs", configQuery(key), nil, 0)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetConfig publishes content to key.
func (e *Engine) SetConfig(ctx context.Context, key model.ConfigKey, content string) error {
	key = e.resolveTenant(key)
	if e.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.ConfigPublishRequest{DataID: key.DataID, Group: key.Group, Tenant: key.Tenant, Content: content}
		return e.mgr.GRPCRequest(ctx, nacospb.TypeConfigPublishRequest, req, nil)
	}

	form := configQuery(key)
	form.Set("content", content)
	_, err := e.mgr.Request(ctx, "POST", "/nacos/v1/cs/configs", nil, form, 0)
	return err
}

// DeleteConfig removes key from the cluster.
func (e *Engine) DeleteConfig(ctx context.Context, key model.ConfigKey) error {
	key = e.resolveTenant(key)
	if e.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.ConfigRemoveRequest{DataID: key.DataID, Group: key.Group, Tenant: key.Tenant}
		return e.mgr.GRPCRequest(ctx, nacospb.TypeConfigRemoveRequest, req, nil)
	}

	_, err := e.mgr.Request(ctx, "DELETE", "/nacos/v1/cs/configs", configQuery(key), nil, 0)
	return err
}

// Subscribe registers listener for key, fetching once synchronously first
// (spec §4.6: "subscribe(listener) immediately fetches once ... the
// listener is invoked once"). Returns an id usable with Unsubscribe.
func (e *Engine) Subscribe(ctx context.Context, key model.ConfigKey, listener Listener) (uint64, error) {
	key = e.resolveTenant(key)
	content, err := e.GetConfig(ctx, key)
	if err != nil {
		return 0, err
	}
	sum := md5Hex(content)

	e.mu.Lock()
	ent, ok := e.entries[key]
	isNew := !ok
	if !ok {
		ent = &entry{key: key}
		e.entries[key] = ent
	}
	e.nextID++
	id := e.nextID
	ent.md5 = sum
	ent.listeners = append(ent.listeners, idListener{id: id, fn: listener})
	watched := len(e.entries)
	e.mu.Unlock()
	metrics.ConfigWatchedKeys.Set(float64(watched))

	if e.mgr.Mode() == conn.ModeGRPC && isNew {
		if err := e.sendBatchListen(ctx, ent, true); err != nil {
			e.log.Warn("config batch listen (add) failed", zap.Error(err))
		}
	}

	listener(content)
	return id, nil
}

// Unsubscribe removes the listener registered under id for key (spec
// §4.6). If the key's listener list becomes empty the entry is removed
// and, under v2, an add=false batch listen is sent.
func (e *Engine) Unsubscribe(ctx context.Context, key model.ConfigKey, id uint64) {
	key = e.resolveTenant(key)
	e.mu.Lock()
	ent, ok := e.entries[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	kept := ent.listeners[:0]
	for _, l := range ent.listeners {
		if l.id != id {
			kept = append(kept, l)
		}
	}
	ent.listeners = kept
	empty := len(ent.listeners) == 0
	if empty {
		delete(e.entries, key)
	}
	watched := len(e.entries)
	e.mu.Unlock()
	metrics.ConfigWatchedKeys.Set(float64(watched))

	if empty && e.mgr.Mode() == conn.ModeGRPC {
		if err := e.sendBatchListen(ctx, ent, false); err != nil {
			e.log.Warn("config batch listen (remove) failed", zap.Error(err))
		}
	}
}

// HandleNotify dispatches one inbound v2 ConfigChangeNotifyRequest: fetches
// the new content and invokes listeners (spec §4.6). Any other payload
// type is ignored; the caller (pkg/nacos's notify router) routes by type
// before calling in.
func (e *Engine) HandleNotify(ctx context.Context, p *nacospb.Payload) *nacospb.AckResponse {
	if p.Metadata.Type != nacospb.TypeConfigChangeNotifyRequest {
		return nil
	}
	var req nacospb.ConfigChangeNotifyRequest
	if err := json.Unmarshal(p.Body, &req); err != nil {
		e.log.Warn("decode ConfigChangeNotifyRequest failed", zap.Error(err))
		return &nacospb.AckResponse{RequestID: req.RequestID, Success: false}
	}
	key := model.NewConfigKey(req.DataID, req.Group, req.Tenant)
	e.refreshKey(ctx, key)
	return &nacospb.AckResponse{RequestID: req.RequestID, Success: true}
}

// refreshKey fetches key's current content and notifies its listeners if
// the fetch succeeds; on failure the md5 is left untouched so the change
// is redelivered on the next notification or poll (spec §4.6 failure
// policy).
func (e *Engine) refreshKey(ctx context.Context, key model.ConfigKey) {
	e.mu.Lock()
	ent, ok := e.entries[key]
	e.mu.Unlock()
	if !ok {
		return
	}

	content, err := e.GetConfig(ctx, key)
	if err != nil {
		e.log.Warn("GetConfig after change notification failed, will redeliver", zap.Error(err))
		return
	}

	e.mu.Lock()
	ent.md5 = md5Hex(content)
	listeners := append([]idListener{}, ent.listeners...)
	e.mu.Unlock()

	metrics.ConfigChangeNotificationsTotal.Add(float64(len(listeners)))
	for _, l := range listeners {
		l.fn(content)
	}
}

func (e *Engine) sendBatchListen(ctx context.Context, ent *entry, add bool) error {
	req := &nacospb.ConfigBatchListenRequest{
		Listen: add,
		Contexts: []nacospb.ConfigListenContext{{
			DataID: ent.key.DataID,
			Group:  ent.key.Group,
			Tenant: ent.key.Tenant,
			Md5:    ent.md5,
		}},
	}
	var resp nacospb.ConfigChangeBatchListenResponse
	return e.mgr.GRPCRequest(ctx, nacospb.TypeConfigBatchListenRequest, req, &resp)
}

// longPollLoop is the v1 cooperative notification loop (spec §4.6): while
// the subscribed-key map is non-empty, build a batch listen body, issue a
// long-poll, and refresh whichever keys the server reports changed.
func (e *Engine) longPollLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.closing:
			return
		default:
		}

		e.mu.Lock()
		entries := make([]*entry, 0, len(e.entries))
		for _, ent := range e.entries {
			entries = append(entries, ent)
		}
		e.mu.Unlock()

		if len(entries) > 0 {
			e.pollOnce(entries)
		}

		select {
		case <-e.closing:
			return
		case <-time.After(reschedulePause):
		}
	}
}

func (e *Engine) pollOnce(entries []*entry) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultLongPollTimeout+time.Second)
	defer cancel()

	body := encodeListenBody(entries)
	form := url.Values{"Listening-Configs": {body}}
	header := map[string]string{"Long-Pulling-Timeout": fmt.Sprintf("%d", DefaultLongPollTimeout.Milliseconds())}

	http := e.mgr.HTTP()
	if http == nil {
		return
	}
	raw, err := http.PostWithHeader(ctx, "/nacos/v1/cs/configs/listener", form, header, DefaultLongPollTimeout+time.Second)
	if err != nil {
		e.log.Warn("config long-poll failed, retrying with same set", zap.Error(err))
		return
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		e.log.Warn("decode long-poll response failed", zap.Error(err))
		return
	}
	changed := decodeChangedKeys(values.Get("v"))
	for _, key := range changed {
		e.refreshKey(ctx, key)
	}
}

func configQuery(key model.ConfigKey) url.Values {
	v := url.Values{"dataId": {key.DataID}, "group": {key.Group}}
	if key.Tenant != "" {
		v.Set("tenant", key.Tenant)
	}
	return v
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
