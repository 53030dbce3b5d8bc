package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	"imagyn/domain/pipeline"
	"imagyn/ports"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultReceiveTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in RemoteError.
	maxErrorBody = 512
)

var _ ports.RenderBackend = (*Client)(nil)

// Options configures a Client.
type Options struct {
	BaseURL string
	// HTTPTimeout bounds each plain HTTP call.
	HTTPTimeout time.Duration
	// ReceiveTimeout is the per-receive wait on the event channel. Expiry is not an error.
	ReceiveTimeout time.Duration
	// Events overrides the websocket event source.
	Events EventSource
	Logger *zap.Logger
}

// Client talks to a ComfyUI-compatible render backend. One client id is generated
// per Client and shared by every job it submits.
type Client struct {
	baseURL        string
	http           *http.Client
	clientID       core.ClientID
	receiveTimeout time.Duration
	events         EventSource
	logger         *zap.Logger
}

// NewClient creates a backend client.
func NewClient(opts Options) *Client {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = defaultHTTPTimeout
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = defaultReceiveTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.Events == nil {
		opts.Events = NewWebsocketSource(baseURL, opts.HTTPTimeout, opts.Logger)
	}

	return &Client{
		baseURL:        baseURL,
		http:           &http.Client{Timeout: opts.HTTPTimeout},
		clientID:       core.NewClientID(),
		receiveTimeout: opts.ReceiveTimeout,
		events:         opts.Events,
		logger:         opts.Logger.With(zap.String("backend", baseURL)),
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// ClientID returns the correlation token sent with every submission.
func (c *Client) ClientID() core.ClientID { return c.clientID }

type submitBody struct {
	ClientID string          `json:"client_id"`
	Prompt   *pipeline.Graph `json:"prompt"`
}

// Submit queues a patched graph for execution.
func (c *Client) Submit(ctx context.Context, graph *pipeline.Graph) (*Job, error) {
	raw, err := json.Marshal(submitBody{ClientID: c.clientID.String(), Prompt: graph})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, "/prompt", nil, raw)
	if err != nil {
		return nil, err
	}
	promptID := gjson.GetBytes(body, "prompt_id").String()
	if promptID == "" {
		return nil, &core.RemoteError{Status: status, Path: "/prompt", Body: "response has no prompt_id"}
	}

	job := &Job{
		ID:          core.JobID(promptID),
		ClientID:    c.clientID,
		State:       JobSubmitted,
		SubmittedAt: time.Now(),
	}
	c.logger.Info("Job submitted", zap.String("job_id", promptID), zap.Int("nodes", graph.Len()))
	return job, nil
}

// FetchHistory returns the execution record of a job. A job the backend does not
// know yet yields an empty record, not an error.
func (c *Client) FetchHistory(ctx context.Context, id core.JobID) (*ExecutionRecord, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(id.String()), nil, nil)
	if err != nil {
		return nil, err
	}
	return parseHistory(id, body), nil
}

// Download fetches the bytes of a produced image.
func (c *Client) Download(ctx context.Context, ref ImageRef) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	kind := ref.Type
	if kind == "" {
		kind = "output"
	}
	query.Set("type", kind)
	if ref.Subfolder != "" {
		query.Set("subfolder", ref.Subfolder)
	}

	data, _, err := c.do(ctx, http.MethodGet, "/view", query, nil)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CheckConnection reports whether the backend answers its status endpoint.
func (c *Client) CheckConnection(ctx context.Context) bool {
	if _, _, err := c.do(ctx, http.MethodGet, "/system_stats", nil, nil); err != nil {
		c.logger.Debug("Backend liveness check failed", zap.Error(err))
		return false
	}
	return true
}

// ListCatalog returns the adapter names the backend's adapter loader accepts.
// Any failure yields an empty list.
func (c *Client) ListCatalog(ctx context.Context) []generation.AdapterDescriptor {
	body, _, err := c.do(ctx, http.MethodGet, "/object_info", nil, nil)
	if err != nil {
		c.logger.Warn("Failed to fetch adapter catalog", zap.Error(err))
		return []generation.AdapterDescriptor{}
	}
	return parseCatalog(body)
}

func parseCatalog(body []byte) []generation.AdapterDescriptor {
	out := []generation.AdapterDescriptor{}
	if !gjson.ValidBytes(body) {
		return out
	}
	for _, class := range pipeline.AdapterLoaderClasses {
		names := gjson.GetBytes(body, class+".input.required.lora_name.0")
		if !names.IsArray() {
			continue
		}
		for _, name := range names.Array() {
			if name.Type != gjson.String {
				continue
			}
			display := pipeline.DisplayName(name.String())
			out = append(out, generation.AdapterDescriptor{
				DisplayName: display,
				CatalogName: name.String(),
				Description: "LoRA model: " + display,
				Tags:        []string{"lora", "style"},
			})
		}
	}
	return out
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, core.NewConnectivityError(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, core.NewConnectivityError(path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, resp.StatusCode, &core.RemoteError{
			Status: resp.StatusCode,
			Path:   path,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return body, resp.StatusCode, nil
}
