package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ProgressChannelOptions configures a ProgressChannel. Zero values pick defaults.
type ProgressChannelOptions struct {
	ClientID       string
	TargetPromptID string
	// Dialer opens the websocket; websocket.DefaultDialer when nil.
	Dialer *websocket.Dialer
	// Disabled marks the environment as lacking streaming support. Start then
	// reports channel_unavailable and does nothing else.
	Disabled bool
	Logger   *slog.Logger
}

// ProgressChannel streams execution events for one prompt over /ws.
//
// Events are delivered on the channel's own goroutine, so the callback must
// not call Stop. channel_lost is reported at most once and never after Stop.
type ProgressChannel struct {
	baseURL  string
	clientID string
	onEvent  func(ProgressEvent)
	dialer   *websocket.Dialer
	disabled bool
	logger   *slog.Logger

	mu           sync.Mutex
	target       string
	conn         *websocket.Conn
	cancel       context.CancelFunc
	started      bool
	closedByUser bool
	lostReported bool
	done         chan struct{}
}

func NewProgressChannel(baseURL string, onEvent func(ProgressEvent), opts ProgressChannelOptions) *ProgressChannel {
	pc := &ProgressChannel{
		baseURL:  baseURL,
		clientID: opts.ClientID,
		onEvent:  onEvent,
		dialer:   opts.Dialer,
		disabled: opts.Disabled,
		logger:   opts.Logger,
		target:   opts.TargetPromptID,
		done:     make(chan struct{}),
	}
	if pc.clientID == "" {
		pc.clientID = uuid.New().String()
	}
	if pc.dialer == nil {
		pc.dialer = websocket.DefaultDialer
	}
	if pc.logger == nil {
		pc.logger = slog.Default()
	}
	if pc.onEvent == nil {
		pc.onEvent = func(ProgressEvent) {}
	}
	return pc
}

// ClientID returns the id the channel subscribes with. Prompts must be
// submitted with the same id to be streamed here.
func (pc *ProgressChannel) ClientID() string {
	return pc.clientID
}

// SetTargetPromptID retargets correlation, e.g. once the server assigned an id.
func (pc *ProgressChannel) SetTargetPromptID(id string) {
	pc.mu.Lock()
	pc.target = id
	pc.mu.Unlock()
}

func (pc *ProgressChannel) targetPromptID() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.target
}

// WebSocketURL derives ws(s)://host/ws?clientId=<id> from an http(s) base URL.
func WebSocketURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	case "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = "/ws"
	u.RawPath = ""
	u.RawQuery = url.Values{"clientId": []string{clientID}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// Start begins connecting in the background. It never blocks on the network.
func (pc *ProgressChannel) Start() {
	pc.mu.Lock()
	if pc.started || pc.closedByUser {
		pc.mu.Unlock()
		return
	}
	pc.started = true

	wsURL, err := WebSocketURL(pc.baseURL, pc.clientID)
	if pc.disabled || err != nil {
		pc.mu.Unlock()
		if err != nil {
			pc.logger.Warn("progress streaming unavailable", "error", err)
		}
		close(pc.done)
		pc.onEvent(newEvent(EventChannelUnavailable))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	pc.cancel = cancel
	pc.mu.Unlock()

	go pc.run(ctx, wsURL)
}

func (pc *ProgressChannel) run(ctx context.Context, wsURL string) {
	defer close(pc.done)

	conn, _, err := pc.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		pc.logger.Debug("progress channel connect failed", "url", wsURL, "error", err)
		pc.reportLost()
		return
	}

	pc.mu.Lock()
	if pc.closedByUser {
		pc.mu.Unlock()
		conn.Close()
		return
	}
	pc.conn = conn
	pc.mu.Unlock()

	pc.onEvent(newEvent(EventChannelConnected))
	pc.handleMessages(conn)
}

// Handle incoming frames until the connection fails or is closed by Stop.
func (pc *ProgressChannel) handleMessages(conn *websocket.Conn) {
	defer conn.Close()
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			pc.logger.Debug("progress channel read ended", "error", err)
			pc.reportLost()
			return
		}
		// binary frames carry preview images
		if msgType != websocket.TextMessage {
			continue
		}
		ev, ok := NormalizeProgressFrame(message, pc.targetPromptID())
		if !ok {
			continue
		}
		pc.mu.Lock()
		closed := pc.closedByUser
		pc.mu.Unlock()
		if closed {
			return
		}
		pc.onEvent(*ev)
	}
}

func (pc *ProgressChannel) reportLost() {
	pc.mu.Lock()
	if pc.closedByUser || pc.lostReported {
		pc.mu.Unlock()
		return
	}
	pc.lostReported = true
	pc.mu.Unlock()
	pc.onEvent(newEvent(EventChannelLost))
}

// Stop closes the connection and waits for the reader to exit. It is safe to
// call more than once, and before Start.
func (pc *ProgressChannel) Stop() {
	pc.mu.Lock()
	if pc.closedByUser {
		pc.mu.Unlock()
		return
	}
	pc.closedByUser = true
	started := pc.started
	if pc.cancel != nil {
		pc.cancel()
	}
	if pc.conn != nil {
		pc.conn.Close()
		pc.conn = nil
	}
	pc.mu.Unlock()

	if started {
		<-pc.done
	}
}
