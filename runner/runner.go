// Package runner executes presets against a ComfyUI server: it resolves the
// preset from the local workdir or the server, maps command line arguments
// onto the graph, submits one prompt per run and collects the outputs.
package runner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/richinsley/comfyagent/catalog"
	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/graphapi"
	"github.com/richinsley/comfyagent/metrics"
	"github.com/richinsley/comfyagent/preset"
)

const (
	DefaultPollInterval = time.Second
	DefaultTimeout      = 300 * time.Second

	// how long a run waits for the progress channel before submitting anyway
	channelReadyWait = 500 * time.Millisecond
)

// Runner executes presets against one server.
type Runner struct {
	client   *client.ComfyClient
	catalog  *catalog.Resolver
	workdir  *preset.Workdir
	metrics  *metrics.Collector
	logger   *slog.Logger
	handlers *client.EventHandlers

	progressOut io.Writer
	dialer      *websocket.Dialer
	noStreaming bool
	readyWait   time.Duration
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithEventHandlers receives every progress event of every run, in addition
// to the progress display.
func WithEventHandlers(h *client.EventHandlers) Option {
	return func(r *Runner) { r.handlers = h }
}

// WithProgressWriter sets where the progress display is drawn. A bar is only
// drawn when w is a terminal.
func WithProgressWriter(w io.Writer) Option {
	return func(r *Runner) { r.progressOut = w }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(r *Runner) { r.dialer = d }
}

// WithoutStreaming skips the progress channel; runs rely on history polling only.
func WithoutStreaming() Option {
	return func(r *Runner) { r.noStreaming = true }
}

func New(c *client.ComfyClient, wd *preset.Workdir, opts ...Option) *Runner {
	r := &Runner{
		client:      c,
		workdir:     wd,
		logger:      slog.Default(),
		progressOut: os.Stderr,
		readyWait:   channelReadyWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.catalog = catalog.NewResolver(c, catalog.WithLogger(r.logger))
	return r
}

// Options controls a batch of runs. Zero durations pick the defaults and a
// zero N means one run.
type Options struct {
	Source       RunSource
	N            int
	Seed         string
	SeedStep     string
	PollInterval time.Duration
	Timeout      time.Duration
	OutDir       string
	// Quiet disables the progress display, e.g. for JSON output.
	Quiet bool
	// Args are the free-form --param value arguments.
	Args []string
}

// Plan is a resolved batch: the preset, its canonical graph and the values
// patched into every run.
type Plan struct {
	Name    string
	Source  catalog.Source
	Preset  *preset.Preset
	Graph   graphapi.Graph
	Params  map[string]any
	Uploads map[string]string
	Seeds   []*int64

	opts Options
}

// Report describes a finished batch.
type Report struct {
	OK        bool           `json:"ok"`
	Preset    string         `json:"preset"`
	Source    catalog.Source `json:"source"`
	BaseURL   string         `json:"base_url"`
	Scope     preset.Scope   `json:"scope"`
	OutputDir string         `json:"output_dir"`
	Runs      []RunResult    `json:"runs"`
}

type RunResult struct {
	Index          int                    `json:"index"`
	PromptID       string                 `json:"prompt_id"`
	Seed           *int64                 `json:"seed"`
	Outputs        []OutputFile           `json:"outputs"`
	Duration       time.Duration          `json:"-"`
	DurationMS     int64                  `json:"duration_ms"`
	ProgressEvents []client.ProgressEvent `json:"progress_events"`
}

// OutputFile is a downloaded job output.
type OutputFile struct {
	client.OutputFileRef
	SavedTo string `json:"saved_to"`
}

// Run resolves the preset called name and executes it opts.N times.
func (r *Runner) Run(ctx context.Context, name string, opts Options) (*Report, error) {
	plan, err := r.Prepare(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan)
}

// Prepare resolves the run target and validates every argument. Nothing is
// uploaded or submitted.
func (r *Runner) Prepare(ctx context.Context, name string, opts Options) (*Plan, error) {
	if err := r.workdir.Ensure(); err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = RunSourceAuto
	}
	if opts.N == 0 {
		opts.N = 1
	}
	if opts.N < 1 {
		return nil, comfyerr.New(comfyerr.InvalidParam, "n must be at least 1").
			WithDetails(map[string]any{"value": opts.N})
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	target, err := r.resolveTarget(ctx, name, opts.Source)
	if err != nil {
		return nil, err
	}

	params, uploads, err := ResolveDynamicArgs(opts.Args, target.Preset)
	if err != nil {
		return nil, err
	}
	seeds, err := ResolveSeedValues(target.Preset, opts.Seed, opts.SeedStep, opts.N)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Name:    name,
		Source:  target.Source,
		Preset:  target.Preset,
		Graph:   target.Graph,
		Params:  params,
		Uploads: uploads,
		Seeds:   seeds,
		opts:    opts,
	}, nil
}

func (r *Runner) resolveTarget(ctx context.Context, name string, requested RunSource) (*catalog.RemoteTarget, error) {
	var local, remote, remoteCatalog *catalog.RemoteTarget
	var remoteErr, catalogErr error

	local, err := r.loadLocalTarget(name)
	if err != nil {
		return nil, err
	}

	if requested != RunSourceLocal && requested != RunSourceRemoteCatalog {
		remote, remoteErr = r.catalog.LoadUserdataTarget(ctx, name)
		if remoteErr != nil {
			if requested == RunSourceRemote {
				return nil, remoteErr
			}
			r.logger.Debug("remote userdata lookup failed", "preset", name, "error", remoteErr)
		}
	}
	if requested == RunSourceRemoteCatalog {
		remoteCatalog, catalogErr = r.catalog.LoadCatalogTarget(ctx, name)
		if catalogErr != nil {
			return nil, catalogErr
		}
	}

	src, err := ResolveSelectedRunSource(requested, local != nil, remote != nil, remoteCatalog != nil, remoteErr, catalogErr)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("resolved run target", "preset", name, "source", src)
	switch src {
	case catalog.SourceLocal:
		return local, nil
	case catalog.SourceRemote:
		return remote, nil
	}
	return remoteCatalog, nil
}

// loadLocalTarget returns nil when the workdir has no preset called name.
func (r *Runner) loadLocalTarget(name string) (*catalog.RemoteTarget, error) {
	path, err := r.workdir.PresetPath(name)
	if err != nil {
		if comfyerr.HasCode(err, comfyerr.PresetNotFound) {
			return nil, nil
		}
		return nil, err
	}
	p, err := preset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := graphapi.NormalizeFile(r.workdir.WorkflowPath(p))
	if err != nil {
		return nil, err
	}
	return &catalog.RemoteTarget{Source: catalog.SourceLocal, Preset: p, Graph: g}, nil
}

// patch builds the graph submitted for run i.
func (p *Plan) patch(i int, uploads map[string]string) (graphapi.Graph, error) {
	params := make(map[string]any, len(p.Params)+1)
	maps.Copy(params, p.Params)
	if seed := p.Seeds[i]; seed != nil {
		params[seedParam] = *seed
	}
	g, err := graphapi.ApplyParameters(p.Graph, p.Preset, params)
	if err != nil {
		return nil, err
	}
	return graphapi.ApplyUploads(g, p.Preset, uploads)
}

// DryRun returns the graph the first run would submit. Upload targets get
// the local file paths since nothing is staged.
func (p *Plan) DryRun() (graphapi.Graph, error) {
	return p.patch(0, p.Uploads)
}

// Execute stages the uploads once and runs the plan sequentially. The first
// failing run aborts the batch.
func (r *Runner) Execute(ctx context.Context, plan *Plan) (*Report, error) {
	outDir, err := r.outputDir(plan.Preset.Name, plan.opts.OutDir)
	if err != nil {
		return nil, err
	}
	r.logger.Info("saving outputs", "dir", outDir)

	uploads, err := r.stageUploads(ctx, plan)
	if err != nil {
		return nil, err
	}

	report := &Report{
		OK:        true,
		Preset:    plan.Preset.Name,
		Source:    plan.Source,
		BaseURL:   r.client.BaseURL(),
		Scope:     r.workdir.Scope,
		OutputDir: outDir,
		Runs:      make([]RunResult, 0, plan.opts.N),
	}
	for i := 0; i < plan.opts.N; i++ {
		start := time.Now()
		res, err := r.runOnce(ctx, plan, i, uploads, outDir)
		if err != nil {
			r.metrics.RecordRun(string(plan.Source), metrics.OutcomeFailure, time.Since(start))
			return nil, err
		}
		r.metrics.RecordRun(string(plan.Source), metrics.OutcomeSuccess, res.Duration)
		report.Runs = append(report.Runs, *res)
	}
	return report, nil
}

func (r *Runner) outputDir(name, out string) (string, error) {
	dir := out
	if dir == "" {
		dir = filepath.Join(r.workdir.Subdir(preset.SubdirOutputs), name, time.Now().Format("20060102_150405"))
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func ensureFileExists(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return comfyerr.Newf(comfyerr.FileNotFound, "file %s not found", path).
				WithDetails(map[string]any{"path": path})
		}
		return err
	}
	if !st.Mode().IsRegular() {
		return comfyerr.Newf(comfyerr.FileNotFound, "%s is not a file", path).
			WithDetails(map[string]any{"path": path})
	}
	return nil
}

// stageUploads sends every upload file to the server and returns the stored
// path per upload name.
func (r *Runner) stageUploads(ctx context.Context, plan *Plan) (map[string]string, error) {
	staged := make(map[string]string, len(plan.Uploads))
	for _, name := range plan.Preset.UploadNames() {
		path, ok := plan.Uploads[name]
		if !ok {
			continue
		}
		if err := ensureFileExists(path); err != nil {
			return nil, err
		}
		def := plan.Preset.Uploads[name]
		endpoint := client.UploadImageEndpoint
		if def.Kind == preset.UploadMask {
			endpoint = client.UploadMaskEndpoint
		}
		r.logger.Info("uploading", "name", name, "endpoint", endpoint)
		resp, err := r.client.UploadFile(ctx, endpoint, path)
		if err != nil {
			return nil, err
		}
		stored, err := resp.StoredPath()
		if err != nil {
			return nil, err
		}
		r.metrics.RecordUpload(string(def.Kind))
		staged[name] = stored
	}
	return staged, nil
}

// progressLog collects the events of one run. It is written from the
// channel's goroutine and read once the channel is stopped.
type progressLog struct {
	mu     sync.Mutex
	events []client.ProgressEvent
}

func (l *progressLog) add(ev client.ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *progressLog) snapshot() []client.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]client.ProgressEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (r *Runner) runOnce(ctx context.Context, plan *Plan, i int, uploads map[string]string, outDir string) (*RunResult, error) {
	start := time.Now()
	runIndex := i + 1
	seed := plan.Seeds[i]

	g, err := plan.patch(i, uploads)
	if err != nil {
		return nil, err
	}

	clientID := uuid.New().String()
	requestID := uuid.New().String()
	r.logger.Info("sending prompt", "run", runIndex, "of", plan.opts.N)

	events := &progressLog{}
	ready := make(chan struct{})
	var readyOnce sync.Once
	ui := newProgressUI(!plan.opts.Quiet, r.progressOut, r.logger)

	channel := client.NewProgressChannel(r.client.BaseURL(), func(ev client.ProgressEvent) {
		events.add(ev)
		r.metrics.RecordProgressEvent(string(ev.Kind))
		if ev.Kind.IsChannelState() {
			readyOnce.Do(func() { close(ready) })
		}
		ui.OnEvent(ev)
		r.handlers.Dispatch(ev)
	}, client.ProgressChannelOptions{
		ClientID:       clientID,
		TargetPromptID: requestID,
		Dialer:         r.dialer,
		Disabled:       r.noStreaming,
		Logger:         r.logger,
	})
	channel.Start()
	defer func() {
		channel.Stop()
		ui.Finish()
	}()

	wait := time.NewTimer(r.readyWait)
	select {
	case <-ready:
	case <-wait.C:
	case <-ctx.Done():
		wait.Stop()
		return nil, ctx.Err()
	}
	wait.Stop()

	resp, err := r.client.QueuePrompt(ctx, g, client.PromptOptions{ClientID: clientID, PromptID: requestID})
	if err != nil {
		return nil, err
	}
	promptID := resp.PromptID
	if promptID == "" {
		promptID = requestID
	}
	if promptID != requestID {
		channel.SetTargetPromptID(promptID)
	}

	refs, err := r.waitForHistory(ctx, promptID, plan.opts.PollInterval, plan.opts.Timeout)
	channel.Stop()
	ui.Finish()
	if err != nil {
		return nil, err
	}

	outputs, err := r.saveOutputs(ctx, refs, outDir, seed, runIndex)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	return &RunResult{
		Index:          runIndex,
		PromptID:       promptID,
		Seed:           seed,
		Outputs:        outputs,
		Duration:       elapsed,
		DurationMS:     elapsed.Milliseconds(),
		ProgressEvents: events.snapshot(),
	}, nil
}

// waitForHistory polls the prompt's history until it lists output files.
func (r *Runner) waitForHistory(ctx context.Context, promptID string, poll, timeout time.Duration) ([]client.OutputFileRef, error) {
	start := time.Now()
	for {
		history, err := r.client.History(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if refs := client.ExtractOutputFiles(client.HistoryEntry(history, promptID)); len(refs) > 0 {
			return refs, nil
		}
		if time.Since(start) > timeout {
			return nil, comfyerr.New(comfyerr.Timeout, "timed out waiting for outputs").
				WithDetails(map[string]any{"prompt_id": promptID})
		}
		r.logger.Debug("no outputs yet", "prompt_id", promptID, "elapsed", time.Since(start).Round(time.Millisecond))

		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func safeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// outputFilename names the j-th output (1-based) of a run:
// {base}_{seed}_{run}_{j}{ext}. Files without an extension are saved as .png.
func outputFilename(filename string, seed *int64, runIndex, j int) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	stem := base[:len(base)-len(ext)]
	if ext == "" {
		ext = ".png"
	}
	seedPart := "seed"
	if seed != nil {
		seedPart = strconv.FormatInt(*seed, 10)
	}
	return safeFilename(stem) + "_" + seedPart + "_" + strconv.Itoa(runIndex) + "_" + strconv.Itoa(j) + ext
}

func (r *Runner) saveOutputs(ctx context.Context, refs []client.OutputFileRef, outDir string, seed *int64, runIndex int) ([]OutputFile, error) {
	outputs := make([]OutputFile, 0, len(refs))
	for j, ref := range refs {
		data, err := r.client.ViewFile(ctx, ref)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(outDir, outputFilename(ref.Filename, seed, runIndex, j+1))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		r.logger.Info("saved output", "path", path)
		outputs = append(outputs, OutputFile{OutputFileRef: ref, SavedTo: path})
	}
	r.metrics.RecordOutputs(len(outputs))
	return outputs, nil
}
