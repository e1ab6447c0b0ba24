// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/extkit/internal/config"
	"github.com/holomush/extkit/internal/observability"
	"github.com/holomush/extkit/internal/sdk"
)

// InstanceStatus holds the status of a running extkit instance.
type InstanceStatus struct {
	Addr    string    `json:"addr"`
	Running bool      `json:"running"`
	Ready   bool      `json:"ready"`
	Info    *sdk.Info `json:"info,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running extkit instance",
		Long: `Query the observability endpoint of a running extkit instance and show
its health, readiness and plugin counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", config.DefaultObservabilityAddr, "observability address of the instance")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "request timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryInstanceStatus(&http.Client{Timeout: cfg.timeout}, cfg.addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(status))
	return nil
}

// queryInstanceStatus asks the instance at addr for readiness and info.
func queryInstanceStatus(client *http.Client, addr string) InstanceStatus {
	status := InstanceStatus{Addr: addr}
	base := "http://" + addr

	resp, err := client.Get(base + observability.PathReadiness)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	_ = resp.Body.Close()
	status.Running = true
	status.Ready = resp.StatusCode == http.StatusOK

	infoResp, err := client.Get(base + observability.PathInfo)
	if err != nil {
		status.Error = fmt.Sprintf("failed to query info: %v", err)
		return status
	}
	defer func() { _ = infoResp.Body.Close() }()
	if infoResp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("info endpoint returned %s", infoResp.Status)
		return status
	}

	var info sdk.Info
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		status.Error = fmt.Sprintf("failed to decode info: %v", err)
		return status
	}
	status.Info = &info
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status InstanceStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDRESS\tSTATUS\tREADY\tNAME\tPLUGINS\tENABLED")
	switch {
	case !status.Running:
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t-\t-\t-\n", status.Addr)
	case status.Info == nil:
		_, _ = fmt.Fprintf(w, "%s\trunning\t%t\t-\t-\t-\n", status.Addr, status.Ready)
	default:
		_, _ = fmt.Fprintf(w, "%s\trunning\t%t\t%s\t%d\t%d\n",
			status.Addr, status.Ready, status.Info.Name,
			status.Info.PluginCount, status.Info.EnabledPluginCount)
	}
	_ = w.Flush()

	if status.Error != "" {
		buf.WriteString("\n" + status.Error + "\n")
	}
	return buf.String()
}
