package main

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/config"
	"github.com/richinsley/comfyagent/internal/xjson"
	"github.com/richinsley/comfyagent/logging"
	"github.com/richinsley/comfyagent/metrics"
	"github.com/richinsley/comfyagent/preset"
	"github.com/richinsley/comfyagent/runner"
)

// version is set at build time via -ldflags.
var version = "dev"

var globalFlags struct {
	baseURL     string
	global      bool
	json        bool
	logLevel    string
	logFormat   string
	metricsFile string
}

var rootCmd = &cobra.Command{
	Use:   "comfyagent",
	Short: "Run reusable ComfyUI workflow presets",
	Long: "comfyagent stores workflow presets in ./.comfy-agent (or ~/.config/.comfy-agent with --global)\n" +
		"and executes them against a ComfyUI server, saving every output locally.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.baseURL, "base-url", "", "ComfyUI server URL (default $COMFY_AGENT_BASE_URL or "+config.DefaultBaseURL+")")
	pf.BoolVar(&globalFlags.global, "global", false, "Use the global workdir ~/.config/.comfy-agent")
	pf.BoolVar(&globalFlags.json, "json", false, "Print machine-readable JSON")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&globalFlags.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&globalFlags.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return comfyerr.New(comfyerr.InvalidParam, "invalid flag").Wrap(err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.Version = version
}

// app holds what a command needs once flags and environment are resolved.
type app struct {
	cfg     *config.Config
	workdir *preset.Workdir
	client  *client.ComfyClient
	metrics *metrics.Collector
	runner  *runner.Runner
	logger  *slog.Logger
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	err = cfg.Override(config.Config{
		BaseURL:   globalFlags.baseURL,
		LogLevel:  globalFlags.logLevel,
		LogFormat: globalFlags.logFormat,
	})
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, comfyerr.New(comfyerr.InvalidParam, "invalid log level").
			WithDetails(map[string]any{"value": cfg.LogLevel}).Wrap(err)
	}
	logging.Init(level, cfg.LogFormat, cmd.ErrOrStderr())

	wd, err := preset.NewWorkdir(preset.ScopeFor(globalFlags.global), "")
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	c := client.NewComfyClient(cfg.BaseURL,
		client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		client.WithLogger(logging.New("client")),
		client.WithObserver(collector),
	)
	r := runner.New(c, wd,
		runner.WithLogger(logging.New("runner")),
		runner.WithMetrics(collector),
		runner.WithProgressWriter(cmd.ErrOrStderr()),
	)
	return &app{
		cfg:     cfg,
		workdir: wd,
		client:  c,
		metrics: collector,
		runner:  r,
		logger:  logging.New("comfyagent"),
	}, nil
}

// flushMetrics writes the textfile when --metrics-file is set. A failed
// write is logged, never fatal.
func (a *app) flushMetrics() {
	if globalFlags.metricsFile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(globalFlags.metricsFile); err != nil {
		a.logger.Warn("failed to write metrics", "path", globalFlags.metricsFile, "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	return xjson.Encode(w, v)
}

// usageArgs reports argument count errors as INVALID_PARAM.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return comfyerr.New(comfyerr.InvalidParam, "invalid arguments").Wrap(err)
		}
		return nil
	}
}
