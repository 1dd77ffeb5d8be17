package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richinsley/comfyagent/runner"
)

var importFlags struct {
	name  string
	force bool
}

var importCmd = &cobra.Command{
	Use:   "import <workflow.json|workflow.png>",
	Short: "Store a workflow and draft a preset for it",
	Long: "Import normalizes an editor or API workflow, copies it into the workdir and writes a preset\n" +
		"exposing every literal input as <node>_<input>. Parameter types come from the server's\n" +
		"/object_info when it is reachable, cached per server under cache/.",
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFlags.name, "name", "", "Preset name (letters, digits, _ and -)")
	importCmd.Flags().BoolVar(&importFlags.force, "force", false, "Overwrite an existing workflow or preset")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	report, err := a.runner.Import(cmd.Context(), args[0], runner.ImportOptions{
		Name:  importFlags.name,
		Force: importFlags.force,
	})
	if err != nil {
		return err
	}
	if globalFlags.json {
		return printJSON(cmd.OutOrStdout(), report)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "workflow saved: %s\n", report.WorkflowPath)
	fmt.Fprintf(w, "preset created: %s (%d parameters, types from %s)\n", report.PresetPath, report.Parameters, report.ObjectInfo)
	return nil
}
