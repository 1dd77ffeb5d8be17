package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/preset"
	"github.com/richinsley/comfyagent/runner"
)

func testRunFlagSet() (*pflag.FlagSet, *struct {
	n      string
	dryRun bool
	json   bool
}) {
	vals := &struct {
		n      string
		dryRun bool
		json   bool
	}{}
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.StringVar(&vals.n, "n", "", "")
	fs.BoolVar(&vals.dryRun, "dry-run", false, "")
	fs.BoolVar(&vals.json, "json", false, "")
	return fs, vals
}

func TestSplitRunArgs(t *testing.T) {
	fs, vals := testRunFlagSet()
	got, err := splitRunArgs([]string{
		"portrait", "--prompt", "a cat", "--n", "3", "--dry-run", "--hires", "--steps=30", "--json", "--input", "in.png",
	}, fs.Lookup)
	require.NoError(t, err)

	assert.Equal(t, "portrait", got.preset)
	assert.Equal(t, []string{"--prompt", "a cat", "--hires", "--steps=30", "--input", "in.png"}, got.dynamic)
	assert.False(t, got.help)
	assert.Equal(t, "3", vals.n)
	assert.True(t, vals.dryRun)
	assert.True(t, vals.json)
}

func TestSplitRunArgsInlineAndHelp(t *testing.T) {
	fs, vals := testRunFlagSet()
	got, err := splitRunArgs([]string{"--n=2", "--dry-run=false", "-h", "upscale"}, fs.Lookup)
	require.NoError(t, err)
	assert.Equal(t, "upscale", got.preset)
	assert.Empty(t, got.dynamic)
	assert.True(t, got.help)
	assert.Equal(t, "2", vals.n)
	assert.False(t, vals.dryRun)
}

func TestSplitRunArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing value", []string{"portrait", "--n"}},
		{"bad bool", []string{"portrait", "--dry-run=maybe"}},
		{"second positional", []string{"portrait", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := testRunFlagSet()
			_, err := splitRunArgs(tt.args, fs.Lookup)
			assert.True(t, comfyerr.HasCode(err, comfyerr.InvalidParam), "got %v", err)
			assert.Equal(t, comfyerr.ExitValidation, comfyerr.ExitCode(err))
		})
	}
}

func TestPrintShowReport(t *testing.T) {
	path := "/work/.comfy-agent/presets/portrait.yaml"
	report := &runner.ShowReport{
		Source: "local",
		Preset: runner.ShownPreset{
			Name:         "portrait",
			Version:      1,
			PresetPath:   &path,
			WorkflowFile: "portrait.json",
			Parameters: []runner.ShownParameter{
				{Name: "prompt", Type: "string", Required: true, Target: &preset.Target{NodeID: "6", Input: "text"}},
				{Name: "steps", Type: "int", Default: 20, Target: &preset.Target{NodeID: "3", Input: "steps"}},
			},
		},
	}

	var buf bytes.Buffer
	printShowReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "preset: "+path+"\n")
	assert.Contains(t, out, "workflow: portrait.json\n")
	assert.Contains(t, out, "- prompt: string (required) target=6.text\n")
	assert.Contains(t, out, "- steps: int (optional) target=3.steps default=20\n")
	assert.True(t, strings.HasSuffix(out, "uploads:\n  (none)\n"))
}

func TestPrintStatusReport(t *testing.T) {
	report := &runner.StatusReport{
		Scope:         preset.ScopeLocal,
		BaseURL:       "http://127.0.0.1:8188",
		BaseURLSource: "default",
		Workdir:       preset.PathState{Path: "/work/.comfy-agent", Exists: true, IsDir: true, Writable: true},
		Subdirs: []runner.SubdirState{
			{Name: preset.SubdirWorkflows, PathState: preset.PathState{Exists: true, IsDir: true, Writable: true}},
			{Name: preset.SubdirCache},
		},
		PresetCount: 2,
		Remote: &runner.RemoteStatus{
			Reachable:    true,
			QueueRunning: 1,
			NodeClasses:  42,
			SystemStats:  &client.SystemStats{System: client.System{OS: "posix", PythonVersion: "3.11"}},
		},
	}

	var buf bytes.Buffer
	printStatusReport(&buf, report)
	assert.Equal(t, "scope: local\n"+
		"base_url: http://127.0.0.1:8188 (default)\n"+
		"workdir: /work/.comfy-agent (ok)\n"+
		"  workflows: ok\n"+
		"  cache: missing\n"+
		"presets: 2\n"+
		"server: queue_running=1 queue_pending=0 node_classes=42 output_nodes=0\n"+
		"system: os=posix python=3.11\n", buf.String())
}

func TestStatusCommandOffline(t *testing.T) {
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	t.Setenv("COMFY_AGENT_BASE_URL", "http://comfy.example:8188")
	t.Cleanup(func() {
		globalFlags.json = false
		statusFlags.offline = false
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"status", "--offline", "--json"})
	require.NoError(t, rootCmd.Execute())

	var report map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "http://comfy.example:8188", report["base_url"])
	assert.Equal(t, "COMFY_AGENT_BASE_URL", report["base_url_source"])
	assert.Equal(t, "local", report["scope"])
	assert.NotContains(t, report, "remote")
}
