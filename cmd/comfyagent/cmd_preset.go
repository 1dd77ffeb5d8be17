package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/richinsley/comfyagent/internal/xjson"
	"github.com/richinsley/comfyagent/preset"
	"github.com/richinsley/comfyagent/runner"
)

var presetShowFlags struct {
	source string
}

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Inspect presets",
}

var presetShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a preset's parameters and uploads",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE:  runPresetShow,
}

func init() {
	presetShowCmd.Flags().StringVar(&presetShowFlags.source, "source", "auto", "Source: local, remote or auto")
	presetCmd.AddCommand(presetShowCmd)
}

func runPresetShow(cmd *cobra.Command, args []string) error {
	source, err := runner.ResolveInspectSource(presetShowFlags.source)
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	report, err := a.runner.Show(cmd.Context(), args[0], source)
	if err != nil {
		return err
	}
	if globalFlags.json {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printShowReport(cmd.OutOrStdout(), report)
	for _, warning := range report.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
	}
	return nil
}

func printShowReport(w io.Writer, report *runner.ShowReport) {
	p := report.Preset
	fmt.Fprintf(w, "name: %s\n", p.Name)
	fmt.Fprintf(w, "source: %s\n", report.Source)
	fmt.Fprintf(w, "version: %d\n", p.Version)
	if p.PresetPath != nil {
		fmt.Fprintf(w, "preset: %s\n", *p.PresetPath)
	}
	if p.WorkflowPath != nil {
		fmt.Fprintf(w, "workflow: %s\n", *p.WorkflowPath)
	} else {
		fmt.Fprintf(w, "workflow: %s\n", p.WorkflowFile)
	}
	if p.RemoteEndpoint != "" {
		fmt.Fprintf(w, "endpoint: %s\n", p.RemoteEndpoint)
	}

	fmt.Fprintln(w, "parameters:")
	if len(p.Parameters) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, param := range p.Parameters {
		required := "optional"
		if param.Required {
			required = "required"
		}
		line := fmt.Sprintf("- %s: %s (%s)%s", param.Name, param.Type, required, targetSuffix(param.Target))
		if param.Default != nil {
			if b, err := xjson.Marshal(param.Default); err == nil {
				line += " default=" + string(b)
			}
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, "uploads:")
	if len(p.Uploads) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, u := range p.Uploads {
		fmt.Fprintf(w, "- %s: %s %s%s\n", u.Name, u.Kind, u.CLIFlag, targetSuffix(u.Target))
	}
}

func targetSuffix(t *preset.Target) string {
	if t == nil {
		return ""
	}
	return " target=" + t.String()
}
