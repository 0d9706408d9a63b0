// vulsimd is a stand-in VulSim backend for development and testing: it
// serves the control channel with in-memory project and configlib services
// and pushes activity onto the log channel, so the IDE (or vulsimctl) can
// run against it without real simulation hardware.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/config"
	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/middleware"
	"github.com/meng-cz/vulsim-rpc/registry"
	"github.com/meng-cz/vulsim-rpc/server"
)

type serveOptions struct {
	configPath string
	bind       string
	rateLimit  float64
	etcd       []string
	backend    string
}

func main() {
	log := logging.Init("vulsimd")
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:           "vulsimd",
		Short:         "Run a stand-in VulSim backend",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a TOML configuration file")
	cmd.Flags().StringVar(&opts.bind, "bind", "", "Bind address (defaults to the configured host)")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 200, "Max calls per second (0 disables)")
	cmd.Flags().StringSliceVar(&opts.etcd, "etcd", nil, "etcd endpoints to register this backend with")
	cmd.Flags().StringVar(&opts.backend, "backend", "vulsim", "Backend name to register in etcd")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("vulsimd failed")
		os.Exit(1)
	}
}

func run(opts *serveOptions) error {
	log := logging.Component("vulsimd")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	bind := opts.bind
	if bind == "" {
		bind = cfg.Host
	}

	svr := server.NewServer()
	svr.Use(middleware.Logging())
	if opts.rateLimit > 0 {
		svr.Use(middleware.RateLimit(opts.rateLimit, int(opts.rateLimit)))
	}
	if err := svr.RegisterName("", server.NewProjectService(svr.Publish)); err != nil {
		return err
	}
	if err := svr.RegisterName("configlib", server.NewConfigLib()); err != nil {
		return err
	}

	if err := svr.ListenControl("tcp", fmt.Sprintf("%s:%d", bind, cfg.Control.Port)); err != nil {
		return err
	}
	if err := svr.ListenLog("tcp", fmt.Sprintf("%s:%d", bind, cfg.Log.Port)); err != nil {
		return err
	}
	log.Info().Str("control", svr.ControlAddr()).Str("log", svr.LogAddr()).Msg("listening")

	if len(opts.etcd) > 0 {
		reg, err := registry.NewEtcdRegistry(opts.etcd)
		if err != nil {
			return fmt.Errorf("etcd connect failed: %w", err)
		}
		defer reg.Close()
		ep := registry.Endpoint{ControlAddr: svr.ControlAddr(), LogAddr: svr.LogAddr()}
		if err := reg.Register(opts.backend, ep, 10); err != nil {
			return fmt.Errorf("etcd register failed: %w", err)
		}
		defer func() { _ = reg.Deregister(opts.backend, ep.ControlAddr) }()
		log.Info().Str("backend", opts.backend).Msg("registered in etcd")
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- svr.Serve() }()
	svr.Publish(message.NewLogEntry("info", "backend", "vulsimd started"))

	// Heartbeat entries keep log docks visibly alive during idle periods.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			svr.Publish(message.NewLogEntry("debug", "backend", "heartbeat"))
		case err := <-serveErr:
			return err
		case <-interrupt:
			log.Info().Msg("shutting down")
			return svr.Shutdown(5 * time.Second)
		}
	}
}
