// Package model holds the wire-level value types shared by the config and
// naming subsystems: HostInfo, ConfigKey, ServiceKey and Instance (spec §3).
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultHTTPPort is used when a host string omits a port.
const DefaultHTTPPort = 8848

// HostInfo identifies one cluster endpoint and its two listening ports.
type HostInfo struct {
	IP       string
	HTTPPort uint16
	GRPCPort uint16
}

// Addr returns "ip:http_port", the form used to build v1 request URLs.
func (h HostInfo) Addr() string {
	return fmt.Sprintf("%s:%d", h.IP, h.HTTPPort)
}

// GRPCAddr returns "ip:grpc_port", the form used to dial the v2 channel.
func (h HostInfo) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", h.IP, h.GRPCPort)
}

// ParseHostInfo parses "ip:port" or "ip:port#grpcport" (spec §3). A bare
// "ip" with no port defaults to DefaultHTTPPort. grpc_port defaults to
// http_port+1000 when not given explicitly.
func ParseHostInfo(s string) (HostInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return HostInfo{}, fmt.Errorf("model: empty host string")
	}

	main, grpcPart, hasGRPC := strings.Cut(s, "#")

	ip, portStr, hasPort := strings.Cut(main, ":")
	httpPort := DefaultHTTPPort
	if hasPort {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return HostInfo{}, fmt.Errorf("model: bad http port in %q: %w", s, err)
		}
		httpPort = p
	}

	grpcPort := httpPort + 1000
	if hasGRPC {
		p, err := strconv.Atoi(grpcPart)
		if err != nil {
			return HostInfo{}, fmt.Errorf("model: bad grpc port in %q: %w", s, err)
		}
		grpcPort = p
	}

	if ip == "" {
		return HostInfo{}, fmt.Errorf("model: empty ip in %q", s)
	}

	return HostInfo{IP: ip, HTTPPort: uint16(httpPort), GRPCPort: uint16(grpcPort)}, nil
}

// ParseHostList splits a comma-separated "host:port[,host:port...]" string
// (the builder's endpoint_addrs surface, spec §6) into HostInfo values.
func ParseHostList(s string) ([]HostInfo, error) {
	parts := strings.Split(s, ",")
	hosts := make([]HostInfo, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		h, err := ParseHostInfo(p)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("model: endpoint list is empty")
	}
	return hosts, nil
}
