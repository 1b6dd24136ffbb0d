package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/conn"
	"github.com/nacos-go/nacos-client-go/internal/errorsx"
	"github.com/nacos-go/nacos-client-go/internal/metrics"
	"github.com/nacos-go/nacos-client-go/internal/model"
	"github.com/nacos-go/nacos-client-go/internal/nacospb"
	"github.com/nacos-go/nacos-client-go/internal/util"
)

// ServiceListener receives the full new host list plus the delta for one
// refresh (spec §4.8's diff algorithm).
type ServiceListener func(key model.ServiceKey, hosts, added, removed []model.Instance)

// DefaultCacheMillis is used when the server omits cacheMillis (spec
// §4.8).
const DefaultCacheMillis = 3 * time.Second

// refreshScan is the shared 1s timer granularity for due-service scanning.
const refreshScan = time.Second

type svcIDListener struct {
	id uint64
	fn ServiceListener
}

type serviceEntry struct {
	key         model.ServiceKey
	clusters    string
	healthyOnly bool
	hosts       []model.Instance
	nextPoll    time.Time

	// cacheMillis is the server-provided refresh cadence from the most
	// recent fetch (spec §4.8's ServiceEntry.cache_ttl_ms); zero until the
	// first v1 response. DefaultCacheMillis sets nextPoll only when the
	// server omits cacheMillis or a fetch fails.
	cacheMillis time.Duration
}

// Listener is the discovery half of the naming subsystem: it tracks
// subscribed services, refreshes them (poll or push), diffs host lists,
// and dispatches listeners (spec §4.8).
type Listener struct {
	mgr      *conn.Manager
	clientIP string
	log      *zap.Logger

	udpConn *net.UDPConn
	udpPort int

	mu        sync.Mutex
	entries   map[string]*serviceEntry
	listeners map[string][]svcIDListener
	nextID    uint64

	rng *rand.Rand

	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewListener builds a Listener bound to mgr. Under v1 it opens an
// ephemeral UDP socket for server push (spec §4.8); under v2 no socket is
// needed.
func NewListener(mgr *conn.Manager, clientIP string, log *zap.Logger) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Listener{
		mgr:       mgr,
		clientIP:  clientIP,
		log:       log,
		entries:   make(map[string]*serviceEntry),
		listeners: make(map[string][]svcIDListener),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		closing:   make(chan struct{}),
	}

	if mgr.Mode() == conn.ModeHTTP {
		udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, errorsx.New(errorsx.KindTransport, "naming.New", fmt.Errorf("bind udp push socket: %w", err))
		}
		l.udpConn = udpConn
		l.udpPort = udpConn.LocalAddr().(*net.UDPAddr).Port
	}

	return l, nil
}

// Run starts the 1s refresh scan and, under v1, the UDP push receive
// loop.
func (l *Listener) Run() {
	l.wg.Add(1)
	go l.refreshLoop()
	if l.udpConn != nil {
		l.wg.Add(1)
		go l.udpLoop()
	}
}

// Close stops both loops and closes the UDP socket.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.closing)
	if l.udpConn != nil {
		_ = l.udpConn.Close()
	}
	l.wg.Wait()
}

// QueryInstances fetches a service's current host list without
// registering a subscription, applying the standard client-side filters
// (spec §4.8).
func (l *Listener) QueryInstances(ctx context.Context, key model.ServiceKey, clusters string, healthyOnly bool) ([]model.Instance, error) {
	hosts, _, err := l.fetchInstances(ctx, key, clusters, healthyOnly)
	return hosts, err
}

// fetchInstances is QueryInstances' implementation, additionally returning
// the server's cacheMillis (v1 only; always zero under v2, which has no
// poll cadence of its own) so refreshOne can honor it when rescheduling
// (spec §4.8's ServiceEntry.cache_ttl_ms).
func (l *Listener) fetchInstances(ctx context.Context, key model.ServiceKey, clusters string, healthyOnly bool) ([]model.Instance, time.Duration, error) {
	var wire []nacospb.InstanceRequest
	var cacheMillis time.Duration
	if l.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.ServiceQueryRequest{
			NamespaceID: key.NamespaceID, GroupName: key.GroupName, ServiceName: key.ServiceName,
			Clusters: clusters, HealthyOnly: healthyOnly,
		}
		var resp nacospb.ServiceQueryResponse
		if err := l.mgr.GRPCRequest(ctx, nacospb.TypeServiceQueryRequest, req, &resp); err != nil {
			return nil, 0, err
		}
		wire = resp.Hosts
	} else {
		q := url.Values{
			"namespaceId": {key.NamespaceID},
			"serviceName": {key.GroupedName()},
			"groupName":   {key.GroupName},
			"clusters":    {clusters},
			"healthyOnly": {strconv.FormatBool(healthyOnly)},
			"clientIP":    {l.clientIP},
			"udpPort":     {strconv.Itoa(l.udpPort)},
		}
		raw, err := l.mgr.Request(ctx, "GET", "/nacos/v1/ns/instance/list", q, nil, 0)
		if err != nil {
			return nil, 0, err
		}
		var qr queryListResult
		if err := json.Unmarshal(raw, &qr); err != nil {
			return nil, 0, errorsx.New(errorsx.KindProtocol, "QueryInstances", err)
		}
		wire = qr.Hosts
		cacheMillis = cacheMillisOrDefault(qr.CacheMillis)
	}

	return filterInstances(wireToInstances(wire, key), healthyOnly, clusters), cacheMillis, nil
}

// cacheMillisOrDefault converts a server-reported cacheMillis into a
// Duration, falling back to DefaultCacheMillis when the server omitted it
// (zero or negative; spec §4.8).
func cacheMillisOrDefault(ms int64) time.Duration {
	if ms <= 0 {
		return DefaultCacheMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// Subscribe registers listener for key. If the service is already
// subscribed, listener receives an immediate snapshot of the last known
// host list; otherwise Subscribe fetches (v1) or subscribes (v2) before
// returning, and that fetch's result becomes the snapshot.
func (l *Listener) Subscribe(ctx context.Context, key model.ServiceKey, clusters string, healthyOnly bool, listener ServiceListener) (uint64, error) {
	wireKey := key.WireKey()

	l.mu.Lock()
	ent, ok := l.entries[wireKey]
	isNew := !ok
	if !ok {
		ent = &serviceEntry{key: key, clusters: clusters, healthyOnly: healthyOnly}
		l.entries[wireKey] = ent
	}
	l.nextID++
	id := l.nextID
	l.listeners[wireKey] = append(l.listeners[wireKey], svcIDListener{id: id, fn: listener})
	watched := len(l.entries)
	l.mu.Unlock()
	metrics.NamingWatchedServices.Set(float64(watched))

	if !isNew {
		l.mu.Lock()
		snapshot := ent.hosts
		l.mu.Unlock()
		listener(key, snapshot, snapshot, nil)
		return id, nil
	}

	if l.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.SubscribeServiceRequest{
			Subscribe: true, NamespaceID: key.NamespaceID, GroupName: key.GroupName,
			ServiceName: key.ServiceName, Clusters: clusters,
		}
		var resp nacospb.ServiceQueryResponse
		if err := l.mgr.GRPCRequest(ctx, nacospb.TypeSubscribeServiceRequest, req, &resp); err != nil {
			return 0, err
		}
		l.applyHosts(ent, wireToInstances(resp.Hosts, key))
		return id, nil
	}

	l.refreshOne(ctx, ent)
	return id, nil
}

// Unsubscribe removes the listener registered under id for key.
func (l *Listener) Unsubscribe(ctx context.Context, key model.ServiceKey, id uint64) {
	wireKey := key.WireKey()

	l.mu.Lock()
	kept := l.listeners[wireKey][:0]
	for _, entry := range l.listeners[wireKey] {
		if entry.id != id {
			kept = append(kept, entry)
		}
	}
	l.listeners[wireKey] = kept
	empty := len(kept) == 0
	if empty {
		delete(l.listeners, wireKey)
		delete(l.entries, wireKey)
	}
	watched := len(l.entries)
	l.mu.Unlock()
	metrics.NamingWatchedServices.Set(float64(watched))

	if empty && l.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.SubscribeServiceRequest{
			Subscribe: false, NamespaceID: key.NamespaceID, GroupName: key.GroupName, ServiceName: key.ServiceName,
		}
		if err := l.mgr.GRPCRequest(ctx, nacospb.TypeSubscribeServiceRequest, req, nil); err != nil {
			l.log.Warn("unsubscribe failed", zap.Error(err))
		}
	}
}

// ResyncAll re-sends subscribe=true for every subscribed service after
// failover (spec §4.5).
func (l *Listener) ResyncAll(ctx context.Context) {
	if l.mgr.Mode() != conn.ModeGRPC {
		return
	}
	l.mu.Lock()
	keys := make([]model.ServiceKey, 0, len(l.entries))
	for _, ent := range l.entries {
		keys = append(keys, ent.key)
	}
	l.mu.Unlock()

	for _, key := range keys {
		req := &nacospb.SubscribeServiceRequest{Subscribe: true, NamespaceID: key.NamespaceID, GroupName: key.GroupName, ServiceName: key.ServiceName}
		if err := l.mgr.GRPCRequest(ctx, nacospb.TypeSubscribeServiceRequest, req, nil); err != nil {
			l.log.Warn("resubscribe after failover failed", zap.Error(err))
		}
	}
}

// HandleNotify dispatches one inbound v2 NotifySubscriberRequest (spec
// §4.8).
func (l *Listener) HandleNotify(ctx context.Context, p *nacospb.Payload) *nacospb.AckResponse {
	if p.Metadata.Type != nacospb.TypeNotifySubscriberRequest {
		return nil
	}
	var req nacospb.NotifySubscriberRequest
	if err := json.Unmarshal(p.Body, &req); err != nil {
		l.log.Warn("decode NotifySubscriberRequest failed", zap.Error(err))
		return &nacospb.AckResponse{Success: false}
	}

	key := model.NewServiceKey(req.NamespaceID, req.GroupName, req.ServiceName)
	l.mu.Lock()
	ent := l.entries[key.WireKey()]
	l.mu.Unlock()
	if ent != nil {
		l.applyHosts(ent, wireToInstances(req.Hosts, key))
	}
	return &nacospb.AckResponse{RequestID: req.RequestID, Success: true}
}

func (l *Listener) refreshLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(refreshScan)
	defer ticker.Stop()
	for {
		select {
		case <-l.closing:
			return
		case <-ticker.C:
			l.refreshDue()
		}
	}
}

func (l *Listener) refreshDue() {
	now := time.Now()
	l.mu.Lock()
	var due []*serviceEntry
	for _, ent := range l.entries {
		if !now.Before(ent.nextPoll) {
			due = append(due, ent)
		}
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, ent := range due {
		l.refreshOne(ctx, ent)
	}
}

// refreshOne performs one v1 poll for ent (spec §4.8). v2 entries keep a
// zero nextPoll, so refreshDue finds them due on every scan; refreshOne
// returns at once under ModeGRPC, and v2 services are refreshed only by
// inbound stream notifications.
func (l *Listener) refreshOne(ctx context.Context, ent *serviceEntry) {
	if l.mgr.Mode() == conn.ModeGRPC {
		return
	}

	hosts, cacheMillis, err := l.fetchInstances(ctx, ent.key, ent.clusters, ent.healthyOnly)
	if err != nil {
		l.log.Warn("naming refresh failed, retrying next scan", zap.Error(err))
		l.mu.Lock()
		ent.nextPoll = time.Now().Add(DefaultCacheMillis)
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	ent.cacheMillis = cacheMillis
	ent.nextPoll = time.Now().Add(cacheMillis)
	l.mu.Unlock()

	l.applyHosts(ent, hosts)
}

// applyHosts runs the diff algorithm against ent's previous host list and
// invokes listeners only if the membership changed (spec §4.8).
func (l *Listener) applyHosts(ent *serviceEntry, newHosts []model.Instance) {
	l.mu.Lock()
	old := ent.hosts
	ent.hosts = newHosts
	wireKey := ent.key.WireKey()
	subs := append([]svcIDListener{}, l.listeners[wireKey]...)
	l.mu.Unlock()

	added, removed := diff(old, newHosts)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	metrics.NamingChangeNotificationsTotal.Add(float64(len(subs)))
	for _, sub := range subs {
		sub.fn(ent.key, newHosts, added, removed)
	}
}

// diff computes added/removed sets keyed by "ip:port" (spec §4.8).
func diff(old, next []model.Instance) (added, removed []model.Instance) {
	oldKeys := make(map[string]struct{}, len(old))
	for _, in := range old {
		oldKeys[in.AddrKey()] = struct{}{}
	}
	newKeys := make(map[string]struct{}, len(next))
	for _, in := range next {
		newKeys[in.AddrKey()] = struct{}{}
		if _, ok := oldKeys[in.AddrKey()]; !ok {
			added = append(added, in)
		}
	}
	for _, in := range old {
		if _, ok := newKeys[in.AddrKey()]; !ok {
			removed = append(removed, in)
		}
	}
	return added, removed
}

// SelectInstance performs spec §4.8's weighted-random pick over an
// already-filtered host list: cumulative floor(weight*1000), uniform
// draw, returns ErrorKind::NotFound if hosts is empty.
func (l *Listener) SelectInstance(hosts []model.Instance) (model.Instance, error) {
	if len(hosts) == 0 {
		return model.Instance{}, errorsx.New(errorsx.KindNotFound, "SelectInstance", fmt.Errorf("no instances available after filtering"))
	}

	cum := make([]int64, len(hosts))
	var sum int64
	for i, in := range hosts {
		sum += int64(in.Weight * 1000)
		cum[i] = sum
	}
	l.mu.Lock()
	var target int64
	if sum == 0 {
		target = int64(l.rng.Intn(len(hosts)))
	} else {
		target = l.rng.Int63n(sum)
	}
	l.mu.Unlock()

	if sum == 0 {
		return hosts[target], nil
	}

	lo, hi := 0, len(cum)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if cum[mid] <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return hosts[lo], nil
}

// filterInstances drops negligible-weight instances, then applies
// healthy-only and cluster-membership filters regardless of what the
// server was asked for (spec §9 design note: the client never trusts the
// server's own healthyOnly/cluster filtering as authoritative).
func filterInstances(hosts []model.Instance, healthyOnly bool, clusters string) []model.Instance {
	var wantClusters map[string]struct{}
	if clusters != "" {
		wantClusters = make(map[string]struct{})
		for _, c := range strings.Split(clusters, ",") {
			if c = strings.TrimSpace(c); c != "" {
				wantClusters[c] = struct{}{}
			}
		}
	}

	out := make([]model.Instance, 0, len(hosts))
	for _, in := range hosts {
		if in.WeightNegligible() {
			continue
		}
		if healthyOnly && !in.Healthy {
			continue
		}
		if wantClusters != nil {
			if _, ok := wantClusters[in.ClusterName]; !ok {
				continue
			}
		}
		out = append(out, in)
	}
	return out
}

// udpPushEnvelope is the gzip-framed JSON datagram body (spec §4.8).
type udpPushEnvelope struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	LastRefTime int64  `json:"lastRefTime"`
}

type queryListResult struct {
	ServiceName string                   `json:"serviceName"`
	GroupName   string                   `json:"groupName"`
	Hosts       []nacospb.InstanceRequest `json:"hosts"`
	CacheMillis int64                    `json:"cacheMillis"`
}

func (l *Listener) udpLoop() {
	defer l.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		_ = l.udpConn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := l.udpConn.ReadFromUDP(buf)
		select {
		case <-l.closing:
			return
		default:
		}
		if err != nil {
			continue // read timeout or transient error; re-check closing and retry
		}
		l.handleUDPDatagram(buf[:n], remote)
	}
}

func (l *Listener) handleUDPDatagram(raw []byte, remote *net.UDPAddr) {
	decoded := util.GzDecode(raw)

	var env udpPushEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		l.log.Warn("decode udp push envelope failed", zap.Error(err))
		return
	}

	var qr queryListResult
	if err := json.Unmarshal([]byte(env.Data), &qr); err != nil {
		l.log.Warn("decode udp push data failed", zap.Error(err))
		return
	}

	key := model.NewServiceKey("", qr.GroupName, qr.ServiceName)
	l.mu.Lock()
	ent := l.entries[key.WireKey()]
	l.mu.Unlock()
	if ent != nil {
		l.applyHosts(ent, wireToInstances(qr.Hosts, ent.key))
		cacheMillis := cacheMillisOrDefault(qr.CacheMillis)
		l.mu.Lock()
		ent.cacheMillis = cacheMillis
		ent.nextPoll = time.Now().Add(cacheMillis)
		l.mu.Unlock()
	}

	ack, err := json.Marshal(map[string]any{"type": "push-ack", "lastRefTime": env.LastRefTime})
	if err != nil {
		return
	}
	if _, err := l.udpConn.WriteToUDP(ack, remote); err != nil {
		l.log.Warn("udp push ack failed", zap.Error(err))
	}
}

func wireToInstances(wire []nacospb.InstanceRequest, key model.ServiceKey) []model.Instance {
	out := make([]model.Instance, 0, len(wire))
	for _, w := range wire {
		out = append(out, model.Instance{
			IP: w.IP, Port: w.Port, Weight: w.Weight, Enabled: w.Enabled, Healthy: w.Healthy,
			Ephemeral: w.Ephemeral, ClusterName: w.ClusterName, ServiceName: key.ServiceName,
			GroupName: key.GroupName, NamespaceID: key.NamespaceID, Metadata: w.Metadata,
		})
	}
	return out
}
