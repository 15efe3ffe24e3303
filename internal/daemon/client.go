package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
)

// Client talks to a serving indexsync process.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new control socket client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect dials the control socket.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, serrors.NotConnected("daemon", err).
			WithSuggestion("start the pipeline with: indexsync serve")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// call performs one request/response exchange and decodes the result into
// out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	// A deadline on ctx takes precedence; otherwise the client timeout applies.
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error.asError()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

// Ping checks that the daemon is responsive.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Start initializes the pipeline.
func (c *Client) Start(ctx context.Context) (*orchestrator.Status, error) {
	var res orchestrator.Status
	if err := c.call(ctx, MethodStart, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stop shuts the pipeline down, flushing the current batch. The daemon
// keeps serving.
func (c *Client) Stop(ctx context.Context) (*orchestrator.Status, error) {
	var res orchestrator.Status
	if err := c.call(ctx, MethodStop, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sync triggers a manual incremental sync.
func (c *Client) Sync(ctx context.Context) (*orchestrator.SyncResult, error) {
	var res orchestrator.SyncResult
	if err := c.call(ctx, MethodSync, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reindex starts a full reindex, waiting for it when wait is true.
func (c *Client) Reindex(ctx context.Context, wait bool) (*ReindexResult, error) {
	var res ReindexResult
	if err := c.call(ctx, MethodReindex, ReindexParams{Wait: wait}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns aggregated pipeline counters.
func (c *Client) Stats(ctx context.Context) (*orchestrator.Stats, error) {
	var res orchestrator.Stats
	if err := c.call(ctx, MethodStats, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueueStats returns the four list lengths.
func (c *Client) QueueStats(ctx context.Context) (*queue.Stats, error) {
	var res queue.Stats
	if err := c.call(ctx, MethodQueueStats, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListJobs returns up to limit jobs of one list.
func (c *Client) ListJobs(ctx context.Context, list string, limit int) ([]queue.Job, error) {
	var res []queue.Job
	if err := c.call(ctx, MethodListJobs, ListJobsParams{Queue: list, Limit: limit}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// RetryFailed moves every failed job back to pending.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	var res CountResult
	if err := c.call(ctx, MethodRetryFailed, nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// ClearQueue empties one list.
func (c *Client) ClearQueue(ctx context.Context, list string) (int, error) {
	var res CountResult
	if err := c.call(ctx, MethodClearQueue, ClearQueueParams{Queue: list}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Health returns the aggregated health check.
func (c *Client) Health(ctx context.Context) (*orchestrator.Health, error) {
	var res orchestrator.Health
	if err := c.call(ctx, MethodHealth, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateConfig patches the sync configuration.
func (c *Client) UpdateConfig(ctx context.Context, params UpdateConfigParams) (*config.SyncConfig, error) {
	var res config.SyncConfig
	if err := c.call(ctx, MethodUpdateConfig, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Enqueue adds a change to the queue.
func (c *Client) Enqueue(ctx context.Context, params EnqueueParams) (string, error) {
	var res EnqueueResult
	if err := c.call(ctx, MethodEnqueue, params, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Search runs a query against the index.
func (c *Client) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	var res search.Result
	if err := c.call(ctx, MethodSearch, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
