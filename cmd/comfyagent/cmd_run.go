package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/runner"
)

var runFlags struct {
	dryRun         bool
	out            string
	n              string
	seed           string
	seedStep       string
	pollIntervalMS string
	timeoutSeconds string
	source         string
	lang           string
}

var runCmd = &cobra.Command{
	Use:   "run <preset> [--<param> value ...]",
	Short: "Run a preset and save its outputs",
	Long: "Run resolves a preset from the workdir or the server, patches the given parameters and uploads\n" +
		"into its workflow, submits it once per --n and downloads every output.\n" +
		"Flags not listed below are passed to the preset as parameters.",
	// Preset parameters are arbitrary --name value pairs, so flags are split by hand.
	DisableFlagParsing: true,
	RunE:               runRun,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "Print the patched workflow instead of submitting it")
	f.StringVar(&runFlags.out, "out", "", "Output directory (default <workdir>/outputs/<preset>/<timestamp>)")
	f.StringVar(&runFlags.n, "n", "", "Number of runs (default 1)")
	f.StringVar(&runFlags.seed, "seed", "", "Seed for the first run, or \"random\"")
	f.StringVar(&runFlags.seedStep, "seed-step", "", "Seed increment between runs")
	f.StringVar(&runFlags.pollIntervalMS, "poll-interval-ms", "", "History poll interval in milliseconds")
	f.StringVar(&runFlags.timeoutSeconds, "timeout-seconds", "", "Per-run timeout in seconds")
	f.StringVar(&runFlags.source, "source", "", "Preset source: local, remote or remote-catalog")
	f.StringVar(&runFlags.lang, "lang", "", "Accepted for compatibility, ignored")
}

// runArgs is the result of splitting the raw run arguments.
type runArgs struct {
	preset  string
	dynamic []string
	help    bool
}

// splitRunArgs sets the flags lookup knows and keeps everything else as
// preset arguments. The first positional argument names the preset.
func splitRunArgs(args []string, lookup func(name string) *pflag.Flag) (*runArgs, error) {
	out := &runArgs{}
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if tok == "-h" || tok == "--help" {
			out.help = true
			continue
		}
		if !strings.HasPrefix(tok, "--") {
			if out.preset != "" {
				return nil, comfyerr.Newf(comfyerr.InvalidParam, "unexpected argument %q", tok).
					WithDetails(map[string]any{"value": tok})
			}
			out.preset = tok
			continue
		}

		name, value, inline := strings.Cut(tok[2:], "=")
		flag := lookup(name)
		if flag == nil {
			out.dynamic = append(out.dynamic, tok)
			if !inline && i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				out.dynamic = append(out.dynamic, args[i+1])
				i++
			}
			continue
		}

		if !inline {
			switch {
			case flag.NoOptDefVal != "":
				value = flag.NoOptDefVal
			case i+1 < len(args):
				value = args[i+1]
				i++
			default:
				return nil, comfyerr.Newf(comfyerr.InvalidParam, "flag --%s needs a value", name).
					WithDetails(map[string]any{"flag": name})
			}
		}
		if err := flag.Value.Set(value); err != nil {
			return nil, comfyerr.Newf(comfyerr.InvalidParam, "invalid value for --%s", name).
				WithDetails(map[string]any{"flag": name, "value": value}).Wrap(err)
		}
		flag.Changed = true
	}
	return out, nil
}

func lookupRunFlag(cmd *cobra.Command) func(string) *pflag.Flag {
	inherited := cmd.InheritedFlags()
	return func(name string) *pflag.Flag {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f
		}
		return inherited.Lookup(name)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	parsed, err := splitRunArgs(args, lookupRunFlag(cmd))
	if err != nil {
		return err
	}
	if parsed.help {
		return cmd.Help()
	}
	if parsed.preset == "" {
		return comfyerr.New(comfyerr.InvalidParam, "preset name is required")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	opts, err := runOptions(a, parsed.dynamic)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	plan, err := a.runner.Prepare(ctx, parsed.preset, opts)
	if err != nil {
		return err
	}
	if runFlags.dryRun {
		g, err := plan.DryRun()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), g)
	}

	report, err := a.runner.Execute(ctx, plan)
	if err != nil {
		return err
	}
	if globalFlags.json {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printRunReport(cmd, report)
	return nil
}

func runOptions(a *app, dynamic []string) (runner.Options, error) {
	n, err := runner.ParseRunCount(runFlags.n)
	if err != nil {
		return runner.Options{}, err
	}
	poll, err := runner.ParseIntervalFlag(runFlags.pollIntervalMS, "poll-interval-ms", time.Millisecond, a.cfg.PollInterval)
	if err != nil {
		return runner.Options{}, err
	}
	timeout, err := runner.ParseIntervalFlag(runFlags.timeoutSeconds, "timeout-seconds", time.Second, a.cfg.Timeout)
	if err != nil {
		return runner.Options{}, err
	}
	source, err := runner.ResolveRunSource(runFlags.source)
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		Source:       source,
		N:            n,
		Seed:         runFlags.seed,
		SeedStep:     runFlags.seedStep,
		PollInterval: poll,
		Timeout:      timeout,
		OutDir:       runFlags.out,
		Quiet:        globalFlags.json,
		Args:         dynamic,
	}, nil
}

func printRunReport(cmd *cobra.Command, report *runner.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "scope: %s\n", report.Scope)
	fmt.Fprintf(w, "source: %s\n", report.Source)
	fmt.Fprintf(w, "completed %s\n", report.OutputDir)
	for _, run := range report.Runs {
		fmt.Fprintf(w, "- #%d prompt_id=%s outputs=%d\n", run.Index, run.PromptID, len(run.Outputs))
	}
}
