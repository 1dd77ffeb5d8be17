package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/richinsley/comfyagent/preset"
	"github.com/richinsley/comfyagent/runner"
)

var statusFlags struct {
	offline bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workdir and server state",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.offline, "offline", false, "Skip the server probe")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	report, err := a.runner.Status(cmd.Context(), a.cfg.BaseURLSource, !statusFlags.offline)
	if err != nil {
		return err
	}
	if globalFlags.json {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printStatusReport(cmd.OutOrStdout(), report)
	return nil
}

func describePath(s preset.PathState) string {
	switch {
	case !s.Exists:
		return "missing"
	case !s.IsDir:
		return "not a directory"
	case !s.Writable:
		return "read-only"
	}
	return "ok"
}

func printStatusReport(w io.Writer, report *runner.StatusReport) {
	fmt.Fprintf(w, "scope: %s\n", report.Scope)
	fmt.Fprintf(w, "base_url: %s (%s)\n", report.BaseURL, report.BaseURLSource)
	fmt.Fprintf(w, "workdir: %s (%s)\n", report.Workdir.Path, describePath(report.Workdir))
	for _, sub := range report.Subdirs {
		fmt.Fprintf(w, "  %s: %s\n", sub.Name, describePath(sub.PathState))
	}
	fmt.Fprintf(w, "presets: %d\n", report.PresetCount)

	r := report.Remote
	if r == nil {
		return
	}
	if !r.Reachable {
		fmt.Fprintf(w, "server: unreachable (%s)\n", r.Error)
		return
	}
	fmt.Fprintf(w, "server: queue_running=%d queue_pending=%d node_classes=%d output_nodes=%d\n",
		r.QueueRunning, r.QueuePending, r.NodeClasses, r.OutputNodes)
	if s := r.SystemStats; s != nil {
		fmt.Fprintf(w, "system: os=%s python=%s", s.System.OS, s.System.PythonVersion)
		if s.System.ComfyUIVersion != "" {
			fmt.Fprintf(w, " comfyui=%s", s.System.ComfyUIVersion)
		}
		fmt.Fprintln(w)
		for _, gpu := range s.Devices {
			fmt.Fprintf(w, "  device %d: %s vram_free=%dMiB/%dMiB\n", gpu.Index, gpu.Name, gpu.VRAMFree>>20, gpu.VRAMTotal>>20)
		}
	}
}
