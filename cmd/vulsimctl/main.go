// vulsimctl is a command-line companion to the VulSim IDE: it issues
// control-channel calls against a backend and tails the log channel,
// which makes it handy for scripting and for debugging backend builds
// without starting the full GUI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/client"
	"github.com/meng-cz/vulsim-rpc/config"
	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/middleware"
	"github.com/meng-cz/vulsim-rpc/registry"
)

type rootOptions struct {
	configPath string
	host       string
	port       int
	logPort    int
	endian     string
	etcd       []string
	backend    string
}

var rootOpts = &rootOptions{}

func main() {
	logging.Init("vulsimctl")
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vulsimctl",
		Short:         "Talk to a VulSim backend over its control and log channels",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&rootOpts.configPath, "config", "", "Path to a TOML configuration file")
	cmd.PersistentFlags().StringVar(&rootOpts.host, "host", "", "Backend host (overrides config)")
	cmd.PersistentFlags().IntVar(&rootOpts.port, "port", 0, "Control-channel port (overrides config)")
	cmd.PersistentFlags().IntVar(&rootOpts.logPort, "log-port", 0, "Log-channel port (overrides config)")
	cmd.PersistentFlags().StringVar(&rootOpts.endian, "endian", "", "Initial byte-order guess: little or big")
	cmd.PersistentFlags().StringSliceVar(&rootOpts.etcd, "etcd", nil, "etcd endpoints for backend discovery")
	cmd.PersistentFlags().StringVar(&rootOpts.backend, "backend", "vulsim", "Registered backend name to resolve via etcd")

	cmd.AddCommand(newCallCommand())
	cmd.AddCommand(newInfoCommand())
	cmd.AddCommand(newProjectCommand())
	cmd.AddCommand(newConfiglibCommand())
	cmd.AddCommand(newLogsCommand())
	return cmd
}

// loadConfig merges file, environment, and flag layers.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootOpts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if rootOpts.host != "" {
		cfg.Host = rootOpts.host
	}
	if rootOpts.port != 0 {
		cfg.Control.Port = rootOpts.port
	}
	if rootOpts.logPort != 0 {
		cfg.Log.Port = rootOpts.logPort
	}
	if rootOpts.endian != "" {
		cfg.Endian = rootOpts.endian
	}
	if len(rootOpts.etcd) > 0 {
		cfg.Etcd.Endpoints = rootOpts.etcd
		cfg.Etcd.Backend = rootOpts.backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolveEndpoint returns the control and log addresses, consulting etcd
// when discovery is configured and falling back to the fixed host/ports.
func resolveEndpoint(cfg config.Config) (controlAddr, logAddr string, err error) {
	if len(cfg.Etcd.Endpoints) == 0 {
		return fmt.Sprintf("%s:%d", cfg.Host, cfg.Control.Port),
			fmt.Sprintf("%s:%d", cfg.Host, cfg.Log.Port), nil
	}

	reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints)
	if err != nil {
		return "", "", fmt.Errorf("etcd connect failed: %w", err)
	}
	defer reg.Close()

	endpoints, err := reg.Discover(cfg.Etcd.Backend)
	if err != nil {
		return "", "", fmt.Errorf("backend discovery failed: %w", err)
	}
	if len(endpoints) == 0 {
		return "", "", fmt.Errorf("no backend registered as %q", cfg.Etcd.Backend)
	}
	return endpoints[0].ControlAddr, endpoints[0].LogAddr, nil
}

// newControlCaller builds the control client for the resolved endpoint,
// wrapped with call logging.
func newControlCaller(cfg config.Config) (client.Caller, error) {
	controlAddr, _, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	host, port, err := splitAddr(controlAddr)
	if err != nil {
		return nil, err
	}
	c, err := client.New(client.Options{
		Host:      host,
		Port:      port,
		Timeout:   cfg.Control.Timeout(),
		ByteOrder: cfg.Endian,
	})
	if err != nil {
		return nil, err
	}
	return middleware.WrapCaller(c, middleware.Logging()), nil
}

func splitAddr(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("invalid address %q", addr)
	}
	var port int
	if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return addr[:i], port, nil
}
