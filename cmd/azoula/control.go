package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
)

func newGetCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <device> [property...]",
		Short: "Read device properties",
		Long: `Read properties from a device. With no property names the device's
stored capability model decides which properties are read; without one the
gateway reports whatever it chooses.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshot(cmd.Context(), func(gw *gateway.Gateway) error {
				props, err := gw.GetDeviceProperties(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(a.out, props)
				}
				return printProperties(a.out, props)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <device> key=value...",
		Short: "Write device properties",
		Long: `Write properties through the device's set service. Values are parsed as
JSON when possible (1, true, "text", {"r":255}) and sent as strings otherwise.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return a.withSnapshot(cmd.Context(), func(gw *gateway.Gateway) error {
				err := gw.SetDeviceProperties(cmd.Context(), args[0], values)
				a.recordAction(cmd.Context(), audit.ActionSetProperties, args[0], values, err)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: set %d propert%s\n", args[0], len(values), plural(len(values), "y", "ies"))
				return nil
			})
		},
	}
}

func newInvokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <device> <service> [key=value...]",
		Short: "Call a device service",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if len(args) > 2 {
				var err error
				if params, err = parseAssignments(args[2:]); err != nil {
					return err
				}
			}
			return a.withSnapshot(cmd.Context(), func(gw *gateway.Gateway) error {
				data, err := gw.InvokeService(cmd.Context(), args[0], args[1], params)
				a.recordAction(cmd.Context(), audit.ActionInvoke, args[0],
					map[string]any{"service": args[1], "params": params}, err)
				if err != nil {
					return err
				}
				if len(data) == 0 {
					fmt.Fprintf(a.out, "%s: %s ok\n", args[0], args[1])
					return nil
				}
				return printJSON(a.out, data)
			})
		},
	}
}

func newIdentifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <device>",
		Short: "Make a device signal its location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshot(cmd.Context(), func(gw *gateway.Gateway) error {
				err := gw.IdentifyDevice(cmd.Context(), args[0])
				a.recordAction(cmd.Context(), audit.ActionIdentify, args[0], nil, err)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: identify sent\n", args[0])
				return nil
			})
		},
	}
}

// parseAssignments turns key=value arguments into a parameter map.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
