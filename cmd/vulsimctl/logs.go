package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/logstream"
	"github.com/meng-cz/vulsim-rpc/message"
)

// newLogsCommand tails the backend's log channel until interrupted.
func newLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Stream backend log events to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, logAddr, err := resolveEndpoint(cfg)
			if err != nil {
				return err
			}
			host, port, err := splitAddr(logAddr)
			if err != nil {
				return err
			}

			failed := make(chan error, 1)
			lc, err := logstream.New(logstream.Options{
				Host:      host,
				Port:      port,
				Timeout:   cfg.Log.Timeout(),
				ByteOrder: cfg.Endian,
				OnLog: func(entry message.LogEntry) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n",
						strings.ToUpper(entry.Level()), entry.Category(), entry.Message())
				},
				OnError: func(err error) {
					failed <- err
				},
			})
			if err != nil {
				return err
			}
			lc.Start()
			defer lc.Stop()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-failed:
				return fmt.Errorf("log channel failed: %w", err)
			case <-interrupt:
				return nil
			}
		},
	}
}
