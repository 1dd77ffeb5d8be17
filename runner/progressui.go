package runner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/richinsley/comfyagent/client"
)

// progressUI renders the events of one run. Finish may be called more than once.
type progressUI interface {
	OnEvent(ev client.ProgressEvent)
	Finish()
}

func newProgressUI(enabled bool, w io.Writer, logger *slog.Logger) progressUI {
	if !enabled {
		return nopUI{}
	}
	if !isTerminal(w) {
		return &logUI{handlers: client.DefaultEventHandlers(logger)}
	}
	return &barUI{w: w, logger: logger}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopUI struct{}

func (nopUI) OnEvent(client.ProgressEvent) {}
func (nopUI) Finish()                      {}

// logUI writes one log line per event.
type logUI struct {
	handlers *client.EventHandlers
}

func (u *logUI) OnEvent(ev client.ProgressEvent) { u.handlers.Dispatch(ev) }
func (u *logUI) Finish()                         {}

// barUI draws a progress bar for the node currently sampling, and a spinner
// while nodes run without step updates.
type barUI struct {
	w      io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	spinner bool
	barNode string
	node    string
}

func (u *barUI) newBar(max int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(u.w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(24),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// flush leaves the last rendered line on screen and drops the bar.
func (u *barUI) flush() {
	if u.bar == nil {
		return
	}
	fmt.Fprintln(u.w)
	u.bar = nil
	u.spinner = false
	u.barNode = ""
}

func (u *barUI) status(description string) {
	u.flush()
	u.bar = u.newBar(-1, description)
	u.spinner = true
}

func (u *barUI) OnEvent(ev client.ProgressEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if ev.Node != "" {
		u.node = ev.Node
	}
	node := u.node
	if node == "" {
		node = "-"
	}

	switch ev.Kind {
	case client.EventProgress:
		if ev.Value == nil || ev.Max == nil || *ev.Max <= 0 {
			return
		}
		max := int64(*ev.Max)
		if u.bar == nil || u.spinner || u.barNode != node {
			u.flush()
			u.bar = u.newBar(max, fmt.Sprintf("node %s", node))
			u.barNode = node
		} else if u.bar.GetMax64() != max {
			u.bar.ChangeMax64(max)
		}
		u.bar.Set64(int64(*ev.Value))
	case client.EventExecuting:
		u.status(fmt.Sprintf("running... (node: %s)", node))
	case client.EventExecutionStart:
		u.status("started...")
	case client.EventExecutionCached:
		u.status(fmt.Sprintf("using cache... (node: %s)", node))
	default:
		u.flush()
		u.logger.Info(formatProgressEvent(ev))
	}
}

func (u *barUI) Finish() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.flush()
}

func formatProgressEvent(ev client.ProgressEvent) string {
	node := ev.Node
	if node == "" {
		node = "-"
	}
	switch ev.Kind {
	case client.EventChannelConnected:
		return "progress channel connected"
	case client.EventChannelUnavailable:
		return "progress channel unavailable, waiting on history"
	case client.EventChannelLost:
		return "progress channel lost, waiting on history"
	case client.EventExecutionStart:
		return "execution started"
	case client.EventExecutionInterrupted:
		return "execution interrupted"
	case client.EventExecutionError:
		message := ev.Message
		if message == "" {
			message = "-"
		}
		return fmt.Sprintf("execution error (node: %s): %s", node, message)
	case client.EventExecutionCached:
		return fmt.Sprintf("using cache (node: %s)", node)
	case client.EventExecuting:
		return fmt.Sprintf("executing (node: %s)", node)
	case client.EventExecuted:
		return fmt.Sprintf("executed (node: %s)", node)
	case client.EventProgress:
		percent := "-"
		if ev.Percent != nil {
			percent = fmt.Sprintf("%.2f", *ev.Percent)
		}
		return fmt.Sprintf("progress (node: %s) %g/%g %s%%", node, deref(ev.Value), deref(ev.Max), percent)
	}
	return fmt.Sprintf("progress: %s", ev.Kind)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
