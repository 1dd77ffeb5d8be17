package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exposition(t *testing.T, c *Collector) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "comfyagent.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCollectorRecordsRequests(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("GET", "/queue", 200, 10*time.Millisecond)
	c.ObserveRequest("GET", "/queue", 0, time.Millisecond)
	c.ObserveRetry("GET", "/queue")

	out := exposition(t, c)
	assert.Contains(t, out, `comfyagent_http_requests_total{method="GET",route="/queue",status="200"} 1`)
	assert.Contains(t, out, `comfyagent_http_requests_total{method="GET",route="/queue",status="error"} 1`)
	assert.Contains(t, out, `comfyagent_http_retries_total{method="GET",route="/queue"} 1`)
	assert.Contains(t, out, `comfyagent_http_request_duration_seconds_count{method="GET",route="/queue"} 2`)
}

func TestCollectorRecordsRuns(t *testing.T) {
	c := NewCollector()
	c.RecordRun("local", OutcomeSuccess, 2*time.Second)
	c.RecordRun("local", OutcomeFailure, time.Second)
	c.RecordProgressEvent("progress")
	c.RecordProgressEvent("progress")
	c.RecordOutputs(3)
	c.RecordUpload("mask")

	out := exposition(t, c)
	assert.Contains(t, out, `comfyagent_runs_total{outcome="success",source="local"} 1`)
	assert.Contains(t, out, `comfyagent_runs_total{outcome="failure",source="local"} 1`)
	assert.Contains(t, out, `comfyagent_run_duration_seconds_count{source="local"} 1`)
	assert.Contains(t, out, `comfyagent_progress_events_total{kind="progress"} 2`)
	assert.Contains(t, out, `comfyagent_outputs_saved_total 3`)
	assert.Contains(t, out, `comfyagent_uploads_total{kind="mask"} 1`)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRequest("GET", "/", 200, time.Second)
		c.ObserveRetry("GET", "/")
		c.RecordRun("remote", OutcomeSuccess, time.Second)
		c.RecordProgressEvent("executing")
		c.RecordOutputs(1)
		c.RecordUpload("image")
	})
	assert.NoError(t, c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, c.Registry())
}
