package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDevices(w io.Writer, devices []device.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPRODUCT\tONLINE\tCATEGORIES")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.DeviceType, d.ProductID, yesNo(d.Online), joinCategories(d.Categories))
	}
	fmt.Fprintf(tw, "\n%d device(s)\n", len(devices))
	return tw.Flush()
}

func printProperties(w io.Writer, props protocol.Properties) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range props.Names() {
		fmt.Fprintf(tw, "%s\t%v\n", name, props[name].Value)
	}
	return tw.Flush()
}

// formatEvent renders an event as one line for the watch command.
func formatEvent(ev gateway.Event) string {
	ts := ev.Time.Format(time.RFC3339)
	switch ev.Kind {
	case gateway.EventOnlineStatus:
		state := "offline"
		if ev.Online {
			state = "online"
		}
		return fmt.Sprintf("%s %s %s", ts, ev.DeviceID, state)
	case gateway.EventPropertyUpdate:
		parts := make([]string, 0, len(ev.Properties))
		for _, name := range ev.Properties.Names() {
			parts = append(parts, fmt.Sprintf("%s=%v", name, ev.Properties[name].Value))
		}
		return fmt.Sprintf("%s %s properties %s", ts, ev.DeviceID, strings.Join(parts, " "))
	case gateway.EventDevice:
		keys := make([]string, 0, len(ev.Params))
		for k := range ev.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, ev.Params[k]))
		}
		return strings.TrimSpace(fmt.Sprintf("%s %s event %s %s", ts, ev.DeviceID, ev.Identifier, strings.Join(parts, " ")))
	}
	return fmt.Sprintf("%s %s %s", ts, ev.DeviceID, ev.Kind)
}

func joinCategories(cats []tsl.Category) string {
	if len(cats) == 0 {
		return "-"
	}
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
