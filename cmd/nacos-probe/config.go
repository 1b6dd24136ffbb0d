// cmd/nacos-probe/config.go
// Centralised configuration loader for the nacos-probe CLI. Mirrors
// internal/agent/config.go's env+file loading pattern, generalized to the
// client builder's own field set (pkg/nacos.ClientConfig).
package main

import (
	"github.com/spf13/viper"
)

// cliConfig duplicates the builder surface of pkg/nacos.ClientConfig in a
// mapstructure-tagged, flat shape suitable for env vars and a config file.
type cliConfig struct {
	EndpointAddrs string `mapstructure:"endpoint_addrs"`
	Tenant        string `mapstructure:"tenant"`
	UseGRPC       bool   `mapstructure:"use_grpc"`
	ClientIP      string `mapstructure:"client_ip"`
	AuthUser      string `mapstructure:"auth_user"`
	AuthPass      string `mapstructure:"auth_pass"`
}

// defaultCLIConfig returns sensible defaults matching pkg/nacos.ClientConfig's
// own zero-value behavior.
func defaultCLIConfig() cliConfig {
	return cliConfig{
		EndpointAddrs: "127.0.0.1:8848",
		Tenant:        "public",
		UseGRPC:       true,
	}
}

// loadCLIConfig reads configuration from env (prefix "NACOS_PROBE") plus an
// optional file. filePath may be empty, in which case only env vars and
// defaults apply.
func loadCLIConfig(filePath string) cliConfig {
	cfg := defaultCLIConfig()

	v := viper.New()
	v.SetEnvPrefix("NACOS_PROBE")
	v.AutomaticEnv()
	if filePath != "" {
		v.SetConfigFile(filePath)
		_ = v.ReadInConfig() // optional; ignore a missing/unreadable file
	}
	_ = v.Unmarshal(&cfg)
	return cfg
}
