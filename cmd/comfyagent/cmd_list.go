package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richinsley/comfyagent/runner"
)

var listFlags struct {
	source string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local presets and remote workflows",
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listFlags.source, "source", "all", "Source: local, remote, remote-catalog or all")
}

func runList(cmd *cobra.Command, _ []string) error {
	source, err := runner.ResolveListSource(listFlags.source)
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	report, err := a.runner.List(cmd.Context(), source)
	if err != nil {
		return err
	}
	if globalFlags.json {
		return printJSON(cmd.OutOrStdout(), report)
	}

	w := cmd.OutOrStdout()
	if len(report.Presets) == 0 {
		fmt.Fprintf(w, "no presets (%s)\n", report.Scope)
	}
	for _, p := range report.Presets {
		origin := p.Workflow
		if origin == "" {
			origin = p.File
		}
		if origin != "" {
			fmt.Fprintf(w, "%s [%s] %s\n", p.Name, p.Source, origin)
		} else {
			fmt.Fprintf(w, "%s [%s]\n", p.Name, p.Source)
		}
	}
	for _, warning := range report.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
	}
	return nil
}
