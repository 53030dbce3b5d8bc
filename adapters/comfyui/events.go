package comfyui

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"imagyn/domain/core"
)

// Event is one decoded message from the backend's push channel.
type Event struct {
	Type string
	Data gjson.Result
}

// ParseEvent decodes a text frame. Frames without a type are rejected.
func ParseEvent(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	msg := gjson.ParseBytes(raw)
	kind := msg.Get("type").String()
	if kind == "" {
		return Event{}, false
	}
	return Event{Type: kind, Data: msg.Get("data")}, true
}

// IsTerminalFor reports whether the event marks the end of the job: an
// "executing" event with a null node for exactly this job id.
func (e Event) IsTerminalFor(id core.JobID) bool {
	if e.Type != "executing" {
		return false
	}
	node := e.Data.Get("node")
	return node.Exists() && node.Type == gjson.Null &&
		e.Data.Get("prompt_id").String() == id.String()
}

// EventStream delivers events until closed. The channel closes when the
// underlying connection drops.
type EventStream interface {
	Events() <-chan Event
	Close() error
}

// EventSource opens event streams scoped to a client id.
type EventSource interface {
	Subscribe(ctx context.Context, clientID core.ClientID) (EventStream, error)
}

// WebsocketSource subscribes to the backend's /ws endpoint.
type WebsocketSource struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

// NewWebsocketSource derives the ws(s) endpoint from the backend's http(s) base URL.
func NewWebsocketSource(baseURL string, handshakeTimeout time.Duration, logger *zap.Logger) *WebsocketSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := baseURL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return &WebsocketSource{
		endpoint: strings.TrimRight(endpoint, "/") + "/ws",
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// Subscribe dials the channel and starts a reader goroutine.
func (s *WebsocketSource) Subscribe(ctx context.Context, clientID core.ClientID) (EventStream, error) {
	target := s.endpoint + "?clientId=" + url.QueryEscape(clientID.String())
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.NewConnectivityError("/ws", err)
	}

	stream := &websocketStream{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go stream.read()
	return stream, nil
}

type websocketStream struct {
	conn      *websocket.Conn
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func (s *websocketStream) Events() <-chan Event { return s.events }

func (s *websocketStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *websocketStream) read() {
	defer close(s.events)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("Event channel closed", zap.Error(err))
			}
			return
		}
		// Binary frames carry previews.
		if kind != websocket.TextMessage {
			continue
		}
		ev, ok := ParseEvent(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
