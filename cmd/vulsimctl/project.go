package main

import (
	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/message"
)

// newProjectCommand groups the root-service project operations.
func newProjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage backend projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, "list", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create and open a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, "create", []message.Arg{message.NamedAt(0, "name", args[0])})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "load NAME",
		Short: "Open an existing project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, "load", []message.Arg{message.NamedAt(0, "name", args[0])})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the open project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, "save", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "close",
		Short: "Close the open project without saving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, "cancel", nil)
		},
	})
	return cmd
}
