package model

import "fmt"

// DefaultCluster is used when an Instance omits its cluster name.
const DefaultCluster = "DEFAULT"

// Instance is one registered service endpoint (spec §3).
type Instance struct {
	IP          string
	Port        uint16
	Weight      float32
	Enabled     bool
	Healthy     bool
	Ephemeral   bool
	ClusterName string
	ServiceName string
	GroupName   string
	NamespaceID string
	Metadata    map[string]string
}

// NewInstance fills in the defaults the register API applies.
func NewInstance(ip string, port uint16) Instance {
	return Instance{
		IP:          ip,
		Port:        port,
		Weight:      1.0,
		Enabled:     true,
		Healthy:     true,
		Ephemeral:   true,
		ClusterName: DefaultCluster,
		GroupName:   DefaultGroup,
		NamespaceID: DefaultNamespace,
	}
}

// RegisterKey returns the collision key used by the naming register:
// (ip, port, cluster, service, group, namespace) (spec §3).
func (in Instance) RegisterKey() string {
	return fmt.Sprintf("%s#%d#%s#%s#%s#%s", in.IP, in.Port, in.ClusterName, in.ServiceName, in.GroupName, in.NamespaceID)
}

// AddrKey returns "ip:port", the key the diff algorithm groups instances by
// (spec §4.8).
func (in Instance) AddrKey() string {
	return fmt.Sprintf("%s:%d", in.IP, in.Port)
}

// WeightNegligible reports whether the instance's weight is low enough to be
// treated as "not selectable" (spec §3, §4.8: a weight <= 0.001 excludes an
// instance entirely before filtering).
func (in Instance) WeightNegligible() bool {
	return in.Weight <= 0.001
}
