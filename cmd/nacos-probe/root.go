// cmd/nacos-probe/root.go
// Root command for the nacos-probe CLI. Wires common flags, global
// initialisation (logger, config file) and the top-level sub-commands
// defined in sibling files (register.go, watch.go, config_cmd.go, version.go).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nacos-go/nacos-client-go/internal/logging"
	"github.com/nacos-go/nacos-client-go/pkg/nacos"
	"github.com/nacos-go/nacos-client-go/pkg/version"
)

var (
	cfgFile string
	logJSON bool

	endpointAddrs string
	tenant        string
	useGRPC       bool
	clientIP      string
	authUser      string
	authPass      string

	rootCmd = &cobra.Command{
		Use:   "nacos-probe",
		Short: "A small diagnostic client for a Nacos-compatible cluster",
		Long:  `nacos-probe registers instances, watches config/naming changes, and reports cluster state for manual and scripted diagnostics.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")
	rootCmd.PersistentFlags().StringVar(&endpointAddrs, "endpoints", "", "Comma-separated host:port cluster address list (overrides config/env)")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant/namespace id (overrides config/env)")
	rootCmd.PersistentFlags().BoolVar(&useGRPC, "grpc", true, "Use the v2 gRPC protocol instead of v1 HTTP long-poll")
	rootCmd.PersistentFlags().StringVar(&clientIP, "client-ip", "", "Override auto-detected client IP")
	rootCmd.PersistentFlags().StringVar(&authUser, "auth-user", "", "Auth username, if the cluster requires it")
	rootCmd.PersistentFlags().StringVar(&authPass, "auth-pass", "", "Auth password, if the cluster requires it")

	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// initConfig reads the configuration file and NACOS_PROBE_* environment
// variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("NACOS_PROBE")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	logging.Sugar().Infow("nacos-probe starting", "version", version.String())
	return nil
}

// buildClientConfig merges the loaded file/env config with whichever CLI
// flags were actually set, flags taking precedence.
func buildClientConfig(cmd *cobra.Command) nacos.ClientConfig {
	loaded := loadCLIConfig(cfgFile)

	addrs := loaded.EndpointAddrs
	if cmd.Flags().Changed("endpoints") {
		addrs = endpointAddrs
	}
	tnt := loaded.Tenant
	if cmd.Flags().Changed("tenant") {
		tnt = tenant
	}
	grpc := loaded.UseGRPC
	if cmd.Flags().Changed("grpc") {
		grpc = useGRPC
	}
	ip := loaded.ClientIP
	if cmd.Flags().Changed("client-ip") {
		ip = clientIP
	}
	user := loaded.AuthUser
	if cmd.Flags().Changed("auth-user") {
		user = authUser
	}
	pass := loaded.AuthPass
	if cmd.Flags().Changed("auth-pass") {
		pass = authPass
	}

	return nacos.ClientConfig{
		EndpointAddrs: addrs,
		Tenant:        tnt,
		UseGRPC:       &grpc,
		ClientIP:      ip,
		AuthInfo:      nacos.AuthInfo{User: user, Pass: pass},
		Logger:        logging.Logger(),
	}
}

func exitWithErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
