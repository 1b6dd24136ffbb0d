// Package nacos is the public façade: two thin clients (ConfigClient,
// NamingClient) built from one shared connection, each implicitly
// namespacing every request with the builder's configured tenant (spec §1).
package nacos

import (
	"fmt"
	"net"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/nacos-go/nacos-client-go/internal/auth"
	"github.com/nacos-go/nacos-client-go/internal/breaker"
	"github.com/nacos-go/nacos-client-go/internal/model"
)

// DefaultTenant is used when ClientConfig.Tenant is left empty (spec §6).
const DefaultTenant = "public"

// AuthInfo holds optional username/password credentials (spec §6 auth_info).
type AuthInfo struct {
	User string
	Pass string
}

// ClientConfig is the builder surface for NewConfigClient, NewNamingClient
// and NewStandalone (spec §6 "Client configuration surface"):
//
//	endpoint_addrs: "host:port[,host:port…]"
//	tenant:         string (default "public")
//	auth_info:      optional {user,pass}
//	use_grpc:       bool (default true)
//	client_ip:      string (auto-detected)
type ClientConfig struct {
	// EndpointAddrs is a comma-separated "host:port[#grpc_port][,host:port…]"
	// list (model.ParseHostList's grammar).
	EndpointAddrs string
	// Tenant defaults to DefaultTenant when empty.
	Tenant string
	// AuthInfo is optional; a zero value disables authentication.
	AuthInfo AuthInfo
	// UseGRPC selects the v2 protocol. Defaults to true.
	UseGRPC *bool
	// ClientIP overrides auto-detection. Auto-detection itself honors the
	// NACOS_CLIENT_IP env var first, then the legacy IP env var (spec §6:
	// "No other env vars are consumed").
	ClientIP string
	// Breaker overrides the circuit breaker's defaults; zero value keeps
	// internal/breaker's own defaults.
	Breaker breaker.Config
	// Logger is the structured logger every subsystem shares. When nil,
	// internal/logging.Default() is used instead.
	Logger *zap.Logger
	// GRPCDialOpts is a test hook (e.g. a bufconn dialer); production code
	// should leave it nil.
	GRPCDialOpts []grpc.DialOption
}

// hosts parses EndpointAddrs into the connection manager's host list.
func (c ClientConfig) hosts() ([]model.HostInfo, error) {
	if strings.TrimSpace(c.EndpointAddrs) == "" {
		return nil, fmt.Errorf("nacos: ClientConfig.EndpointAddrs must not be empty")
	}
	return model.ParseHostList(c.EndpointAddrs)
}

func (c ClientConfig) tenant() string {
	if c.Tenant == "" {
		return DefaultTenant
	}
	return c.Tenant
}

func (c ClientConfig) useGRPC() bool {
	if c.UseGRPC == nil {
		return true
	}
	return *c.UseGRPC
}

func (c ClientConfig) authInfo() auth.Info {
	return auth.Info{Username: c.AuthInfo.User, Password: c.AuthInfo.Pass}
}

func (c ClientConfig) clientIP() string {
	if c.ClientIP != "" {
		return c.ClientIP
	}
	if v := os.Getenv("NACOS_CLIENT_IP"); v != "" {
		return v
	}
	if v := os.Getenv("IP"); v != "" {
		return v
	}
	return detectLocalIP()
}

// detectLocalIP finds the local address this host would use to reach the
// outside world, by opening a UDP "connection" (no packet is ever sent) and
// reading back the kernel's chosen source address — the standard Go idiom
// for this, since net.Interfaces() alone can't tell a routable address from
// a loopback or a Docker bridge one (spec §6: client_ip is "auto-detected").
func detectLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
