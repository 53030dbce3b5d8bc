package comfyui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"imagyn/domain/core"
)

// fakeBackend is an in-process render backend. After a prompt is submitted it
// replays script on the websocket, with "$ID" replaced by the assigned prompt id.
type fakeBackend struct {
	t        *testing.T
	server   *httptest.Server
	promptID string
	image    []byte
	history  string
	script   []string
	// dropAfterScript closes the websocket once the script is sent.
	dropAfterScript bool

	mu        sync.Mutex
	submitted []map[string]any
	views     []url.Values
	wsClients []string
	started   chan struct{}
}

func newFakeBackend(t *testing.T, promptID string) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:        t,
		promptID: promptID,
		image:    []byte("\x89PNG\r\n\x1a\nfake"),
		started:  make(chan struct{}, 1),
		history: `{"$ID": {"outputs": {
			"7": {"text": ["ignored"]},
			"9": {"images": [{"filename": "imagyn_00001_.png", "subfolder": "", "type": "output"}]}
		}}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", fb.handlePrompt)
	mux.HandleFunc("/history/", fb.handleHistory)
	mux.HandleFunc("/view", fb.handleView)
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"system": {"os": "posix"}}`))
	})
	mux.HandleFunc("/object_info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"LoraLoader": {"input": {"required": {"lora_name": [["anime.safetensors", "ink_wash.ckpt"]]}}}}`))
	})
	mux.HandleFunc("/ws", fb.handleWebsocket)

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) client(opts Options) *Client {
	opts.BaseURL = fb.server.URL
	return NewClient(opts)
}

func (fb *fakeBackend) expand(s string) string {
	return strings.ReplaceAll(s, "$ID", fb.promptID)
}

func (fb *fakeBackend) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	fb.mu.Lock()
	fb.submitted = append(fb.submitted, body)
	fb.mu.Unlock()

	select {
	case fb.started <- struct{}{}:
	default:
	}
	w.Write([]byte(`{"prompt_id": "` + fb.promptID + `", "number": 1, "node_errors": {}}`))
}

func (fb *fakeBackend) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/history/")
	if id != fb.promptID {
		w.Write([]byte(`{}`))
		return
	}
	w.Write([]byte(fb.expand(fb.history)))
}

func (fb *fakeBackend) handleView(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.views = append(fb.views, r.URL.Query())
	fb.mu.Unlock()
	if r.URL.Query().Get("filename") == "missing.png" {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.Write(fb.image)
}

var upgrader = websocket.Upgrader{}

func (fb *fakeBackend) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fb.mu.Lock()
	fb.wsClients = append(fb.wsClients, r.URL.Query().Get("clientId"))
	fb.mu.Unlock()

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 0}}}}`))

	select {
	case <-fb.started:
	case <-r.Context().Done():
		return
	}

	// A preview frame that must be skipped.
	conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 1, 0xff})
	for _, msg := range fb.script {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fb.expand(msg))); err != nil {
			return
		}
	}
	if fb.dropAfterScript {
		return
	}
	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// channelSource is an EventSource fed directly by the test.
type channelSource struct {
	ch         chan Event
	err        error
	subscribed []core.ClientID
}

func newChannelSource() *channelSource {
	return &channelSource{ch: make(chan Event, 16)}
}

func (s *channelSource) Subscribe(ctx context.Context, clientID core.ClientID) (EventStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.subscribed = append(s.subscribed, clientID)
	return channelStream{ch: s.ch}, nil
}

type channelStream struct{ ch chan Event }

func (s channelStream) Events() <-chan Event { return s.ch }
func (s channelStream) Close() error         { return nil }

func mustEvent(t *testing.T, raw string) Event {
	t.Helper()
	ev, ok := ParseEvent([]byte(raw))
	require.True(t, ok, "unparseable event %s", raw)
	return ev
}
