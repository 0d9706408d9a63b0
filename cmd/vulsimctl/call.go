package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meng-cz/vulsim-rpc/message"
)

// newCallCommand issues an arbitrary backend method, for poking at backend
// builds: `vulsimctl call configlib.add name=timeout value=30`.
func newCallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call METHOD [name=value ...]",
		Short: "Invoke a raw backend method",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := make([]message.Arg, 0, len(args)-1)
			for i, pair := range args[1:] {
				name, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("argument %q is not name=value", pair)
				}
				callArgs = append(callArgs, message.NamedAt(i, name, value))
			}
			return runCall(cmd, args[0], callArgs)
		},
	}
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show backend status and the open project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, "info", nil)
		},
	}
}

// runCall executes one control-channel call and pretty-prints the response.
// A nonzero code maps to a nonzero exit status so scripts can branch on it.
func runCall(cmd *cobra.Command, method string, args []message.Arg) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	caller, err := newControlCaller(cfg)
	if err != nil {
		return err
	}

	resp := caller.Call(method, args)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if resp.Code() != 0 {
		return fmt.Errorf("backend returned code %d: %s", resp.Code(), resp.Msg())
	}
	return nil
}
