// Package naming implements the naming register (heartbeating owned
// instances, spec §4.7) and the naming listener (service discovery,
// spec §4.8).
package naming

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/conn"
	"github.com/nacos-go/nacos-client-go/internal/metrics"
	"github.com/nacos-go/nacos-client-go/internal/model"
	"github.com/nacos-go/nacos-client-go/internal/nacospb"
)

// HeartbeatPeriod is the v1 per-instance PUT beat interval (spec §4.7).
const HeartbeatPeriod = 5 * time.Second

// unregisterGrace bounds Close's best-effort unregister pass (spec §5).
const unregisterGrace = 500 * time.Millisecond

// scanInterval is how often the heartbeat loop scans owned instances for a
// due deadline — a single timer shared by every instance rather than one
// timer each (spec §4.7: "a timeout-set keyed by deadline to avoid
// per-instance timers").
const scanInterval = 200 * time.Millisecond

type owned struct {
	inst     model.Instance
	nextBeat time.Time
}

// Register owns the set of instances this client has registered and, in
// v1 mode, heartbeats them on a shared schedule.
type Register struct {
	mgr *conn.Manager
	log *zap.Logger

	mu        sync.Mutex
	instances map[string]*owned

	closing chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewRegister builds a Register bound to mgr. clientIP is not needed here
// (only the discovery Listener reports it, for UDP push registration); it
// is taken by the sibling NewListener constructor instead.
func NewRegister(mgr *conn.Manager, log *zap.Logger) *Register {
	if log == nil {
		log = zap.NewNop()
	}
	return &Register{
		mgr:       mgr,
		log:       log,
		instances: make(map[string]*owned),
		closing:   make(chan struct{}),
	}
}

// Run starts the v1 heartbeat scan loop. A no-op under v2, where the gRPC
// session's own keepalive is sufficient (spec §4.7).
func (r *Register) Run() {
	if r.mgr.Mode() != conn.ModeHTTP {
		return
	}
	r.wg.Add(1)
	go r.heartbeatLoop()
}

// Register registers inst with the cluster and begins heartbeating it
// (v1) or leaves it to the gRPC session (v2).
func (r *Register) Register(ctx context.Context, inst model.Instance) error {
	if err := r.doRegister(ctx, inst); err != nil {
		return err
	}
	r.mu.Lock()
	r.instances[inst.RegisterKey()] = &owned{inst: inst, nextBeat: time.Now()}
	r.mu.Unlock()
	return nil
}

// Deregister removes inst from the cluster and stops heartbeating it.
func (r *Register) Deregister(ctx context.Context, inst model.Instance) error {
	err := r.doDeregister(ctx, inst)
	r.mu.Lock()
	delete(r.instances, inst.RegisterKey())
	r.mu.Unlock()
	return err
}

// ResyncAll re-registers every owned instance after failover (spec §4.5).
func (r *Register) ResyncAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]model.Instance, 0, len(r.instances))
	for _, o := range r.instances {
		all = append(all, o.inst)
	}
	r.mu.Unlock()

	for _, inst := range all {
		if err := r.doRegister(ctx, inst); err != nil {
			r.log.Warn("re-register after failover failed", zap.Error(err))
		}
	}
}

// Close stops the heartbeat loop and best-effort unregisters every owned
// instance within a 500ms grace window (spec §5). Errors are logged, not
// surfaced.
func (r *Register) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]model.Instance, 0, len(r.instances))
	for _, o := range r.instances {
		all = append(all, o.inst)
	}
	r.mu.Unlock()

	close(r.closing)
	r.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), unregisterGrace)
	defer cancel()
	for _, inst := range all {
		if err := r.doDeregister(ctx, inst); err != nil {
			r.log.Warn("unregister on shutdown failed", zap.Error(err))
		}
	}
}

func (r *Register) doRegister(ctx context.Context, inst model.Instance) error {
	if r.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.BatchInstanceRequest{
			Type:        "registerInstance",
			Instances:   []nacospb.InstanceRequest{instanceToWire(inst)},
			NamespaceID: inst.NamespaceID,
			GroupName:   inst.GroupName,
			ServiceName: inst.ServiceName,
		}
		return r.mgr.GRPCRequest(ctx, nacospb.TypeBatchInstanceRequest, req, nil)
	}

	form := instanceForm(inst)
	_, err := r.mgr.Request(ctx, "POST", "/nacos/v1/ns/instance", nil, form, 0)
	return err
}

func (r *Register) doDeregister(ctx context.Context, inst model.Instance) error {
	if r.mgr.Mode() == conn.ModeGRPC {
		req := &nacospb.BatchInstanceRequest{
			Type:        "deregisterInstance",
			Instances:   []nacospb.InstanceRequest{instanceToWire(inst)},
			NamespaceID: inst.NamespaceID,
			GroupName:   inst.GroupName,
			ServiceName: inst.ServiceName,
		}
		return r.mgr.GRPCRequest(ctx, nacospb.TypeBatchInstanceRequest, req, nil)
	}

	form := instanceForm(inst)
	_, err := r.mgr.Request(ctx, "DELETE", "/nacos/v1/ns/instance", form, nil, 0)
	return err
}

func (r *Register) heartbeatLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.closing:
			return
		case <-ticker.C:
			r.beatDue()
		}
	}
}

func (r *Register) beatDue() {
	now := time.Now()
	r.mu.Lock()
	var due []*owned
	for _, o := range r.instances {
		if !now.Before(o.nextBeat) {
			due = append(due, o)
		}
	}
	r.mu.Unlock()

	for _, o := range due {
		r.beatOne(o)
	}
}

func (r *Register) beatOne(o *owned) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload := beatPayload{
		IP:          o.inst.IP,
		Port:        o.inst.Port,
		Weight:      o.inst.Weight,
		ServiceName: o.inst.ServiceName,
		Cluster:     o.inst.ClusterName,
		Metadata:    o.inst.Metadata,
		Scheduled:   false,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("encode beat payload failed", zap.Error(err))
		o.nextBeat = time.Now().Add(HeartbeatPeriod)
		return
	}

	form := url.Values{
		"serviceName": {o.inst.ServiceName},
		"namespaceId": {o.inst.NamespaceID},
		"groupName":   {o.inst.GroupName},
		"ip":          {o.inst.IP},
		"port":        {strconv.Itoa(int(o.inst.Port))},
		"beat":        {string(raw)},
	}
	if _, err := r.mgr.Request(ctx, "PUT", "/nacos/v1/ns/instance/beat", form, nil, 0); err != nil {
		r.log.Warn("heartbeat failed, retrying next period", zap.Error(err))
	} else {
		metrics.HeartbeatsTotal.Inc()
	}

	r.mu.Lock()
	o.nextBeat = time.Now().Add(HeartbeatPeriod)
	r.mu.Unlock()
}

// beatPayload is the pre-serialized "beat" form field (spec §4.7).
type beatPayload struct {
	IP          string            `json:"ip"`
	Port        uint16            `json:"port"`
	Weight      float32           `json:"weight"`
	ServiceName string            `json:"serviceName"`
	Cluster     string            `json:"cluster"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Scheduled   bool              `json:"scheduled"`
}

func instanceForm(inst model.Instance) url.Values {
	v := url.Values{
		"ip":          {inst.IP},
		"port":        {strconv.Itoa(int(inst.Port))},
		"serviceName": {inst.ServiceName},
		"groupName":   {inst.GroupName},
		"namespaceId": {inst.NamespaceID},
		"clusterName": {inst.ClusterName},
		"weight":      {strconv.FormatFloat(float64(inst.Weight), 'f', -1, 32)},
		"enabled":     {strconv.FormatBool(inst.Enabled)},
		"healthy":     {strconv.FormatBool(inst.Healthy)},
		"ephemeral":   {strconv.FormatBool(inst.Ephemeral)},
	}
	return v
}

func instanceToWire(inst model.Instance) nacospb.InstanceRequest {
	return nacospb.InstanceRequest{
		IP:          inst.IP,
		Port:        inst.Port,
		Weight:      inst.Weight,
		Enabled:     inst.Enabled,
		Healthy:     inst.Healthy,
		Ephemeral:   inst.Ephemeral,
		ClusterName: inst.ClusterName,
		ServiceName: inst.ServiceName,
		GroupName:   inst.GroupName,
		NamespaceID: inst.NamespaceID,
		Metadata:    inst.Metadata,
	}
}
