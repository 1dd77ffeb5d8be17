package runner

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/richinsley/comfyagent/client"
	"github.com/richinsley/comfyagent/graphapi"
	"github.com/richinsley/comfyagent/preset"
)

type SubdirState struct {
	Name string `json:"name"`
	preset.PathState
}

// RemoteStatus is what the server reported. Error is set when it could not
// be reached.
type RemoteStatus struct {
	Reachable    bool                `json:"reachable"`
	Error        string              `json:"error,omitempty"`
	QueueRunning int                 `json:"queue_running"`
	QueuePending int                 `json:"queue_pending"`
	NodeClasses  int                 `json:"node_classes"`
	OutputNodes  int                 `json:"output_nodes"`
	SystemStats  *client.SystemStats `json:"system_stats,omitempty"`
}

type StatusReport struct {
	OK            bool             `json:"ok"`
	Scope         preset.Scope     `json:"scope"`
	BaseURL       string           `json:"base_url"`
	BaseURLSource string           `json:"base_url_source"`
	Workdir       preset.PathState `json:"workdir"`
	Subdirs       []SubdirState    `json:"subdirs"`
	PresetCount   int              `json:"preset_count"`
	Presets       []string         `json:"presets"`
	Remote        *RemoteStatus    `json:"remote,omitempty"`
}

// Status inspects the workdir and, when probe is set, asks the server for
// its queue, node classes and system stats.
func (r *Runner) Status(ctx context.Context, baseURLSource string, probe bool) (*StatusReport, error) {
	root, subdirs := r.workdir.Inspect()
	files, err := r.workdir.PresetFiles(true)
	if err != nil {
		return nil, err
	}
	presets := make([]string, 0, len(files))
	for _, f := range files {
		presets = append(presets, strings.TrimSuffix(f, filepath.Ext(f)))
	}

	report := &StatusReport{
		OK:            true,
		Scope:         r.workdir.Scope,
		BaseURL:       r.client.BaseURL(),
		BaseURLSource: baseURLSource,
		Workdir:       root,
		PresetCount:   len(presets),
		Presets:       presets,
	}
	for _, name := range preset.Subdirs {
		report.Subdirs = append(report.Subdirs, SubdirState{Name: name, PathState: subdirs[name]})
	}
	if probe {
		report.Remote = r.probe(ctx)
	}
	return report, nil
}

func (r *Runner) probe(ctx context.Context) *RemoteStatus {
	var (
		queue *client.QueueInfo
		info  graphapi.NodeObjects
		stats *client.SystemStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		queue, err = r.client.Queue(gctx)
		return err
	})
	g.Go(func() (err error) {
		info, err = r.client.ObjectInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		// older servers have no /system_stats
		if stats, err = r.client.SystemStats(gctx); err != nil {
			r.logger.Debug("system stats unavailable", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return &RemoteStatus{Error: err.Error()}
	}
	return &RemoteStatus{
		Reachable:    true,
		QueueRunning: len(queue.Running),
		QueuePending: len(queue.Pending),
		NodeClasses:  len(info),
		OutputNodes:  len(info.OutputNodes()),
		SystemStats:  stats,
	}
}
