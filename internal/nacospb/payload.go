// Package nacospb defines the v2 gRPC wire payload (spec §6): every
// request/response/notification carries a Metadata envelope (type,
// client_ip, headers) and a JSON body.
//
// The real Nacos v2 protocol compiles this shape from a .proto file via
// protoc-gen-go / protoc-gen-go-grpc. This pack's retrieved copy of the
// teacher's generated proto layer (internal/proto/agent_grpc.pb.go) ships
// without the message (.pb.go) file it depends on, and protoc is not run in
// this exercise, so Payload is a plain Go struct carried over gRPC through a
// small hand-registered "json" codec (see codec.go) rather than through
// protoc-compiled proto.Message marshalling. The service definition
// (service_grpc.go) otherwise follows protoc-gen-go-grpc's own generated
// shape (ServiceDesc, generic bidi-stream wrapper, Unimplemented*Server).
package nacospb

// Metadata is the envelope carried by every Payload (spec §6).
type Metadata struct {
	Type     string            `json:"type"`
	ClientIP string            `json:"clientIp"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Payload is one request, response or server-initiated notification on the
// v2 channel.
type Payload struct {
	Metadata Metadata `json:"metadata"`
	Body     []byte   `json:"body"` // raw JSON of the typed request/response
}

// Known payload type names (spec §6).
const (
	TypeConfigQueryRequest             = "ConfigQueryRequest"
	TypeConfigQueryResponse            = "ConfigQueryResponse"
	TypeConfigPublishRequest           = "ConfigPublishRequest"
	TypeConfigRemoveRequest            = "ConfigRemoveRequest"
	TypeConfigBatchListenRequest       = "ConfigBatchListenRequest"
	TypeConfigChangeBatchListenResp    = "ConfigChangeBatchListenResponse"
	TypeConfigChangeNotifyRequest      = "ConfigChangeNotifyRequest"
	TypeBatchInstanceRequest           = "BatchInstanceRequest"
	TypeSubscribeServiceRequest        = "SubscribeServiceRequest"
	TypeServiceQueryRequest            = "ServiceQueryRequest"
	TypeServiceQueryResponse           = "ServiceQueryResponse"
	TypeNotifySubscriberRequest        = "NotifySubscriberRequest"
	TypeConnectionSetupRequest         = "ConnectionSetupRequest"
	TypeServerCheckRequest             = "ServerCheckRequest"
	TypeServerCheckResponse            = "ServerCheckResponse"
	TypeErrorResponse                  = "ErrorResponse"
	TypeAckResponse                    = "Response" // generic ack carrying requestId
)

// ConnectionSetupRequest is sent once, immediately after the bidi stream
// opens (spec §4.4).
type ConnectionSetupRequest struct {
	ClientVersion string            `json:"clientVersion"`
	Labels        map[string]string `json:"labels,omitempty"`
	Tenant        string            `json:"tenant,omitempty"`
}

// ServerCheckRequest/Response implement the 5s keepalive (spec §4.4).
type ServerCheckRequest struct {
	RequestID string `json:"requestId"`
}

type ServerCheckResponse struct {
	RequestID    string `json:"requestId"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// ConfigQueryRequest/Response implement GetConfig over gRPC.
type ConfigQueryRequest struct {
	RequestID string `json:"requestId"`
	DataID    string `json:"dataId"`
	Group     string `json:"group"`
	Tenant    string `json:"tenant,omitempty"`
}

type ConfigQueryResponse struct {
	RequestID string `json:"requestId"`
	Content   string `json:"content"`
	Md5       string `json:"md5"`
	Success   bool   `json:"success"`
	ErrorMsg  string `json:"errorMsg,omitempty"`
}

// ConfigPublishRequest implements SetConfig over gRPC.
type ConfigPublishRequest struct {
	RequestID string `json:"requestId"`
	DataID    string `json:"dataId"`
	Group     string `json:"group"`
	Tenant    string `json:"tenant,omitempty"`
	Content   string `json:"content"`
}

// ConfigRemoveRequest implements DeleteConfig over gRPC.
type ConfigRemoveRequest struct {
	RequestID string `json:"requestId"`
	DataID    string `json:"dataId"`
	Group     string `json:"group"`
	Tenant    string `json:"tenant,omitempty"`
}

// ConfigListenContext is one (key, md5) pair inside a batch listen request.
type ConfigListenContext struct {
	DataID string `json:"dataId"`
	Group  string `json:"group"`
	Tenant string `json:"tenant,omitempty"`
	Md5    string `json:"md5"`
}

// ConfigBatchListenRequest adds or removes a batch of watched keys
// (spec §4.6).
type ConfigBatchListenRequest struct {
	RequestID string                 `json:"requestId"`
	Listen    bool                   `json:"listen"` // true=add, false=remove
	Contexts  []ConfigListenContext  `json:"configListenContexts"`
}

// ConfigChangeBatchListenResponse acknowledges a batch listen registration.
type ConfigChangeBatchListenResponse struct {
	RequestID string `json:"requestId"`
}

// ConfigChangeNotifyRequest is pushed by the server when a watched key
// changes (spec §6).
type ConfigChangeNotifyRequest struct {
	RequestID string `json:"requestId"`
	DataID    string `json:"dataId"`
	Group     string `json:"group"`
	Tenant    string `json:"tenant,omitempty"`
}

// InstanceRequest describes one instance mutation inside a
// BatchInstanceRequest.
type InstanceRequest struct {
	IP          string            `json:"ip"`
	Port        uint16            `json:"port"`
	Weight      float32           `json:"weight"`
	Enabled     bool              `json:"enabled"`
	Healthy     bool              `json:"healthy"`
	Ephemeral   bool              `json:"ephemeral"`
	ClusterName string            `json:"clusterName"`
	ServiceName string            `json:"serviceName"`
	GroupName   string            `json:"groupName"`
	NamespaceID string            `json:"namespaceId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// BatchInstanceRequest implements Register/Unregister over gRPC
// (spec §4.5, §4.7).
type BatchInstanceRequest struct {
	RequestID   string            `json:"requestId"`
	Type        string            `json:"type"` // "registerInstance" | "deregisterInstance"
	Instances   []InstanceRequest `json:"instances"`
	NamespaceID string            `json:"namespaceId"`
	GroupName   string            `json:"groupName"`
	ServiceName string            `json:"serviceName"`
}

// SubscribeServiceRequest implements Subscribe/Unsubscribe over gRPC
// (spec §4.8).
type SubscribeServiceRequest struct {
	RequestID   string `json:"requestId"`
	Subscribe   bool   `json:"subscribe"`
	NamespaceID string `json:"namespaceId"`
	GroupName   string `json:"groupName"`
	ServiceName string `json:"serviceName"`
	Clusters    string `json:"clusters,omitempty"`
}

// ServiceQueryRequest/Response implement QueryInstances over gRPC.
type ServiceQueryRequest struct {
	RequestID   string `json:"requestId"`
	NamespaceID string `json:"namespaceId"`
	GroupName   string `json:"groupName"`
	ServiceName string `json:"serviceName"`
	Clusters    string `json:"clusters,omitempty"`
	HealthyOnly bool   `json:"healthyOnly"`
}

type ServiceQueryResponse struct {
	RequestID   string            `json:"requestId"`
	Hosts       []InstanceRequest `json:"hosts"`
	CacheMillis int64             `json:"cacheMillis"`
}

// NotifySubscriberRequest is pushed by the server when a subscribed
// service's membership changes (spec §6).
type NotifySubscriberRequest struct {
	RequestID   string            `json:"requestId"`
	NamespaceID string            `json:"namespaceId"`
	GroupName   string            `json:"groupName"`
	ServiceName string            `json:"serviceName"`
	Hosts       []InstanceRequest `json:"hosts"`
}

// AckResponse is the generic de-duplication ACK the client sends back for
// every inbound server notification (spec §4.4).
type AckResponse struct {
	RequestID   string `json:"requestId"`
	LastRefTime int64  `json:"lastRefTime"`
	Success     bool   `json:"success"`
}

// ErrorResponse is returned by either side when a request cannot be
// satisfied.
type ErrorResponse struct {
	RequestID string `json:"requestId"`
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}
