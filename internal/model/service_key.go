package model

// DefaultNamespace is the v1 default naming namespace.
const DefaultNamespace = "public"

// ServiceKey identifies one named service within a namespace/group.
type ServiceKey struct {
	NamespaceID string
	GroupName   string
	ServiceName string
}

// NewServiceKey fills in defaults the way the wire protocol does.
func NewServiceKey(namespaceID, groupName, serviceName string) ServiceKey {
	if groupName == "" {
		groupName = DefaultGroup
	}
	if namespaceID == "" {
		namespaceID = DefaultNamespace
	}
	return ServiceKey{NamespaceID: namespaceID, GroupName: groupName, ServiceName: serviceName}
}

// Equal reports field-wise equality.
func (k ServiceKey) Equal(other ServiceKey) bool {
	return k.NamespaceID == other.NamespaceID && k.GroupName == other.GroupName && k.ServiceName == other.ServiceName
}

// GroupedName returns "group@@service", the grouped wire form (spec §3).
func (k ServiceKey) GroupedName() string {
	return k.GroupName + "@@" + k.ServiceName
}

// WireKey returns a map key unique per (namespace, grouped name), used by the
// naming listener's service-entry and listener-list maps.
func (k ServiceKey) WireKey() string {
	return k.NamespaceID + "::" + k.GroupedName()
}
