package runner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/catalog"
	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/graphapi"
	"github.com/richinsley/comfyagent/metrics"
	"github.com/richinsley/comfyagent/preset"
)

const testPresetYAML = `version: 1
name: portrait
workflow: portrait.json
parameters:
  prompt:
    type: string
    required: true
    target: {node_id: 6, input: text}
  seed:
    type: int
    target: {node_id: 3, input: seed}
  steps:
    type: int
    default: 20
    target: {node_id: 3, input: steps}
uploads:
  image:
    kind: image
    cli_flag: --input
    target: {node_id: "10", input: image}
`

const testWorkflowJSON = `{
  "3": {"class_type": "KSampler", "inputs": {"seed": 1, "steps": 10, "model": ["4", 0]}},
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sd15.safetensors"}},
  "6": {"class_type": "CLIPTextEncode", "inputs": {"text": "placeholder", "clip": ["4", 1]}},
  "9": {"class_type": "SaveImage", "inputs": {"images": ["3", 0]}},
  "10": {"class_type": "LoadImage", "inputs": {"image": "example.png"}}
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestWorkdir lays out a local workdir holding the portrait preset.
func newTestWorkdir(t *testing.T) *preset.Workdir {
	t.Helper()
	wd, err := preset.NewWorkdir(preset.ScopeLocal, t.TempDir())
	require.NoError(t, err)
	for _, sub := range preset.Subdirs {
		require.NoError(t, os.MkdirAll(wd.Subdir(sub), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(wd.Subdir(preset.SubdirPresets), "portrait.yaml"), []byte(testPresetYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wd.Subdir(preset.SubdirWorkflows), "portrait.json"), []byte(testWorkflowJSON), 0o644))
	return wd
}

type submittedPrompt struct {
	Prompt   graphapi.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
	PromptID string         `json:"prompt_id"`
}

// fakeComfy is a ComfyUI server that executes every prompt instantly. The
// websocket streams a fixed event sequence for each submitted prompt, and
// history only lists outputs once the client has seen the last event.
type fakeComfy struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	prompts     []submittedPrompt
	uploads     []string
	wsClientIDs []string
	neverDone   bool
	serverID    string

	submitted chan string
	seen      chan struct{}
	seenOnce  sync.Once
}

func newFakeComfy(t *testing.T) *fakeComfy {
	f := &fakeComfy{
		t:         t,
		submitted: make(chan string, 8),
		seen:      make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWS)
	mux.HandleFunc("/prompt", f.handlePrompt)
	mux.HandleFunc("/history/", f.handleHistory)
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png:" + r.URL.Query().Get("filename")))
	})
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()
		w.Write([]byte(`{"name": "` + header.Filename + `", "subfolder": "agent", "type": "input"}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// markSeen is installed as an executed handler on the runner.
func (f *fakeComfy) markSeen(client.ProgressEvent) {
	f.seenOnce.Do(func() { close(f.seen) })
}

func (f *fakeComfy) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.wsClientIDs = append(f.wsClientIDs, r.URL.Query().Get("clientId"))
	f.mu.Unlock()

	var promptID string
	select {
	case promptID = <-f.submitted:
	case <-time.After(5 * time.Second):
		return
	}
	frames := []map[string]any{
		{"type": "status", "data": map[string]any{"status": map[string]any{}}},
		{"type": "execution_start", "data": map[string]any{"prompt_id": promptID}},
		{"type": "progress", "data": map[string]any{"prompt_id": "someone-else", "node": "3", "value": 1, "max": 4}},
		{"type": "executing", "data": map[string]any{"prompt_id": promptID, "node": "3"}},
		{"type": "progress", "data": map[string]any{"prompt_id": promptID, "node": "3", "value": 1, "max": 4}},
		{"type": "executed", "data": map[string]any{"prompt_id": promptID, "node": "9"}},
	}
	for _, frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeComfy) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body submittedPrompt
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, body)
	id := body.PromptID
	if f.serverID != "" {
		id = f.serverID
	}
	f.mu.Unlock()
	f.submitted <- id
	json.NewEncoder(w).Encode(map[string]any{"prompt_id": id, "number": len(f.prompts)})
}

func (f *fakeComfy) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/history/")
	select {
	case <-f.seen:
	default:
		w.Write([]byte(`{}`))
		return
	}
	f.mu.Lock()
	neverDone := f.neverDone
	f.mu.Unlock()
	if neverDone {
		w.Write([]byte(`{}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		id: map[string]any{
			"outputs": map[string]any{
				"9": map[string]any{"images": []any{
					map[string]any{"filename": "ComfyUI_00001_.png", "subfolder": "", "type": "output"},
					map[string]any{"filename": "mask layer", "subfolder": "masks", "type": "output"},
				}},
			},
		},
	})
}

func (f *fakeComfy) snapshot() ([]submittedPrompt, []string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submittedPrompt(nil), f.prompts...), append([]string(nil), f.uploads...), append([]string(nil), f.wsClientIDs...)
}

func newTestRunner(f *fakeComfy, wd *preset.Workdir, opts ...Option) *Runner {
	handlers := &client.EventHandlers{OnExecuted: f.markSeen}
	base := []Option{
		WithLogger(quietLogger()),
		WithEventHandlers(handlers),
		WithProgressWriter(io.Discard),
	}
	c := client.NewComfyClient(f.srv.URL, client.WithLogger(quietLogger()))
	return New(c, wd, append(base, opts...)...)
}

func TestRunEndToEnd(t *testing.T) {
	f := newFakeComfy(t)
	wd := newTestWorkdir(t)
	input := filepath.Join(t.TempDir(), "face.png")
	require.NoError(t, os.WriteFile(input, []byte("fake image"), 0o644))
	out := filepath.Join(t.TempDir(), "out")
	collector := metrics.NewCollector()

	r := newTestRunner(f, wd, WithMetrics(collector))
	report, err := r.Run(context.Background(), "portrait", Options{
		Source:       RunSourceLocal,
		Seed:         "42",
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
		OutDir:       out,
		Args:         []string{"--prompt", "a red fox", "--input", input},
	})
	require.NoError(t, err)

	assert.True(t, report.OK)
	assert.Equal(t, "portrait", report.Preset)
	assert.Equal(t, catalog.SourceLocal, report.Source)
	assert.Equal(t, f.srv.URL, report.BaseURL)
	assert.Equal(t, preset.ScopeLocal, report.Scope)
	assert.Equal(t, out, report.OutputDir)
	require.Len(t, report.Runs, 1)

	run := report.Runs[0]
	assert.Equal(t, 1, run.Index)
	require.NotNil(t, run.Seed)
	assert.Equal(t, int64(42), *run.Seed)

	prompts, uploads, wsClients := f.snapshot()
	require.Len(t, prompts, 1)
	assert.Equal(t, []string{"face.png"}, uploads)
	assert.Equal(t, run.PromptID, prompts[0].PromptID)
	assert.Equal(t, []string{prompts[0].ClientID}, wsClients)

	g := prompts[0].Prompt
	assert.Equal(t, "a red fox", g["6"].Inputs["text"])
	assert.Equal(t, float64(42), g["3"].Inputs["seed"])
	assert.Equal(t, float64(20), g["3"].Inputs["steps"])
	assert.Equal(t, "agent/face.png", g["10"].Inputs["image"])

	require.Len(t, run.Outputs, 2)
	assert.Equal(t, "ComfyUI_00001_.png", run.Outputs[0].Filename)
	assert.Equal(t, filepath.Join(out, "ComfyUI_00001__42_1_1.png"), run.Outputs[0].SavedTo)
	assert.Equal(t, filepath.Join(out, "mask_layer_42_1_2.png"), run.Outputs[1].SavedTo)
	data, err := os.ReadFile(run.Outputs[1].SavedTo)
	require.NoError(t, err)
	assert.Equal(t, "png:mask layer", string(data))

	var kinds []client.EventKind
	for _, ev := range run.ProgressEvents {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []client.EventKind{
		client.EventChannelConnected,
		client.EventExecutionStart,
		client.EventExecuting,
		client.EventProgress,
		client.EventExecuted,
	}, kinds)
	assert.Equal(t, 25.0, *run.ProgressEvents[3].Percent)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, collector.WriteTextfile(path))
	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `comfyagent_runs_total{outcome="success",source="local"} 1`)
	assert.Contains(t, string(text), `comfyagent_uploads_total{kind="image"} 1`)
}

func TestRunRetargetsOnServerAssignedID(t *testing.T) {
	f := newFakeComfy(t)
	f.serverID = "server-assigned"
	// frames sent before the retarget are dropped, so don't gate history on them
	f.markSeen(client.ProgressEvent{})
	wd := newTestWorkdir(t)

	r := newTestRunner(f, wd)
	report, err := r.Run(context.Background(), "portrait", Options{
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
		OutDir:       t.TempDir(),
		Quiet:        true,
		Args:         []string{"--prompt=cat"},
	})
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, "server-assigned", report.Runs[0].PromptID)
	assert.Nil(t, report.Runs[0].Seed)
	assert.Equal(t, "ComfyUI_00001__seed_1_1.png", filepath.Base(report.Runs[0].Outputs[0].SavedTo))
}

func TestRunTimesOut(t *testing.T) {
	f := newFakeComfy(t)
	f.neverDone = true
	wd := newTestWorkdir(t)
	collector := metrics.NewCollector()

	r := newTestRunner(f, wd, WithMetrics(collector), WithoutStreaming())
	_, err := r.Run(context.Background(), "portrait", Options{
		Source:       RunSourceLocal,
		PollInterval: 5 * time.Millisecond,
		Timeout:      30 * time.Millisecond,
		OutDir:       t.TempDir(),
		Args:         []string{"--prompt", "cat"},
	})
	require.Error(t, err)
	ce, ok := comfyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, comfyerr.Timeout, ce.Code)

	prompts, _, wsClients := f.snapshot()
	require.Len(t, prompts, 1)
	assert.Equal(t, prompts[0].PromptID, ce.Details["prompt_id"])
	assert.Empty(t, wsClients)
}

func TestRunBatchUsesSeedStep(t *testing.T) {
	f := newFakeComfy(t)
	wd := newTestWorkdir(t)

	r := newTestRunner(f, wd, WithoutStreaming())
	f.markSeen(client.ProgressEvent{})
	report, err := r.Run(context.Background(), "portrait", Options{
		Source:       RunSourceLocal,
		N:            3,
		Seed:         "10",
		SeedStep:     "2",
		PollInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
		Args:         []string{"--prompt", "cat"},
	})
	require.NoError(t, err)
	require.Len(t, report.Runs, 3)

	prompts, _, _ := f.snapshot()
	require.Len(t, prompts, 3)
	for i, want := range []float64{10, 12, 14} {
		assert.Equal(t, want, prompts[i].Prompt["3"].Inputs["seed"])
		assert.Equal(t, i+1, report.Runs[i].Index)
	}
	assert.NotEqual(t, prompts[0].ClientID, prompts[1].ClientID)
	assert.NotEqual(t, prompts[0].PromptID, prompts[1].PromptID)

	assert.True(t, strings.HasPrefix(report.OutputDir, filepath.Join(wd.Subdir(preset.SubdirOutputs), "portrait")))
	assert.DirExists(t, report.OutputDir)
}

func TestPrepareValidatesBeforeNetwork(t *testing.T) {
	f := newFakeComfy(t)
	wd := newTestWorkdir(t)
	r := newTestRunner(f, wd)
	ctx := context.Background()

	_, err := r.Prepare(ctx, "portrait", Options{Source: RunSourceLocal, Args: []string{"--bogus", "1", "--prompt", "x"}})
	assert.True(t, comfyerr.HasCode(err, comfyerr.UnknownParam))

	_, err = r.Prepare(ctx, "missing", Options{Source: RunSourceLocal})
	assert.True(t, comfyerr.HasCode(err, comfyerr.PresetNotFound))

	_, err = r.Prepare(ctx, "portrait", Options{Source: RunSourceLocal, N: -1, Args: []string{"--prompt", "x"}})
	assert.True(t, comfyerr.HasCode(err, comfyerr.InvalidParam))

	_, err = r.Run(ctx, "portrait", Options{Source: RunSourceLocal, OutDir: t.TempDir(), Args: []string{"--prompt", "x", "--input", "/does/not/exist.png"}})
	ce, ok := comfyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, comfyerr.FileNotFound, ce.Code)
	assert.Equal(t, "/does/not/exist.png", ce.Details["path"])

	prompts, uploads, _ := f.snapshot()
	assert.Empty(t, prompts)
	assert.Empty(t, uploads)
}

func TestPrepareRequiresWorkdir(t *testing.T) {
	f := newFakeComfy(t)
	wd, err := preset.NewWorkdir(preset.ScopeLocal, t.TempDir())
	require.NoError(t, err)

	_, err = newTestRunner(f, wd).Prepare(context.Background(), "portrait", Options{})
	assert.True(t, comfyerr.HasCode(err, comfyerr.WorkdirNotFound))
}

func TestDryRun(t *testing.T) {
	f := newFakeComfy(t)
	wd := newTestWorkdir(t)
	r := newTestRunner(f, wd)

	plan, err := r.Prepare(context.Background(), "portrait", Options{
		Source: RunSourceLocal,
		Seed:   "7",
		Args:   []string{"--prompt", "cat", "--steps", "30", "--input", "local.png"},
	})
	require.NoError(t, err)
	g, err := plan.DryRun()
	require.NoError(t, err)

	assert.Equal(t, "cat", g["6"].Inputs["text"])
	assert.Equal(t, int64(7), g["3"].Inputs["seed"])
	assert.Equal(t, int64(30), g["3"].Inputs["steps"])
	assert.Equal(t, "local.png", g["10"].Inputs["image"])
	// the loaded graph stays pristine
	assert.Equal(t, float64(1), plan.Graph["3"].Inputs["seed"])

	prompts, uploads, _ := f.snapshot()
	assert.Empty(t, prompts)
	assert.Empty(t, uploads)
}

func TestRemoteUserdataFallback(t *testing.T) {
	wf := map[string]any{
		"1": map[string]any{"class_type": "KSampler", "inputs": map[string]any{"seed": 3, "steps": 8}},
		"2": map[string]any{"class_type": "SaveImage", "inputs": map[string]any{"images": []any{"1", 0}}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/userdata", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dir") != "workflows" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]string{"remote-flow.json"})
	})
	mux.HandleFunc("/api/userdata/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wf)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wd := newTestWorkdir(t)
	c := client.NewComfyClient(srv.URL, client.WithLogger(quietLogger()))
	r := New(c, wd, WithLogger(quietLogger()))

	plan, err := r.Prepare(context.Background(), "remote-flow", Options{Seed: "99"})
	require.NoError(t, err)
	assert.Equal(t, catalog.SourceRemote, plan.Source)
	assert.Equal(t, catalog.RemoteWorkflowPlaceholder, plan.Preset.Workflow)
	require.Contains(t, plan.Preset.Parameters, "seed")

	g, err := plan.DryRun()
	require.NoError(t, err)
	assert.Equal(t, int64(99), g["1"].Inputs["seed"])
}
