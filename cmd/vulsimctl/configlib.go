package main

import (
	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/message"
)

// newConfiglibCommand groups the configlib.* operations.
func newConfiglibCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configlib",
		Short: "Manage backend configuration entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configuration entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, "configlib.list", nil)
		},
	})

	var comment string
	add := &cobra.Command{
		Use:   "add NAME VALUE",
		Short: "Add a configuration entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := []message.Arg{
				message.NamedAt(0, "name", args[0]),
				message.NamedAt(1, "value", args[1]),
			}
			if comment != "" {
				callArgs = append(callArgs, message.NamedAt(2, "comment", comment))
			}
			return runCall(cmd, "configlib.add", callArgs)
		},
	}
	add.Flags().StringVar(&comment, "comment", "", "Entry comment")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "update NAME VALUE",
		Short: "Change an entry's value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, "configlib.update", []message.Arg{
				message.NamedAt(0, "name", args[0]),
				message.NamedAt(1, "value", args[1]),
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, "configlib.remove", []message.Arg{message.NamedAt(0, "name", args[0])})
		},
	})

	var reverse bool
	listref := &cobra.Command{
		Use:   "listref NAME",
		Short: "List references of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := []message.Arg{message.NamedAt(0, "name", args[0])}
			if reverse {
				callArgs = append(callArgs, message.NamedAt(1, "reverse", "true"))
			}
			return runCall(cmd, "configlib.listref", callArgs)
		},
	}
	listref.Flags().BoolVar(&reverse, "reverse", false, "List entries referencing NAME instead")
	cmd.AddCommand(listref)

	return cmd
}
