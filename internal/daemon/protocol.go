package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing         = "ping"
	MethodStart        = "start"
	MethodStop         = "stop"
	MethodSync         = "sync"
	MethodReindex      = "reindex"
	MethodStats        = "stats"
	MethodQueueStats   = "queue_stats"
	MethodListJobs     = "list_jobs"
	MethodRetryFailed  = "retry_failed"
	MethodClearQueue   = "clear_queue"
	MethodHealth       = "health"
	MethodUpdateConfig = "update_config"
	MethodEnqueue      = "enqueue"
	MethodSearch       = "search"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeSyncError carries a pipeline error; Data holds its ERR_ code.
const ErrCodeSyncError = -32001

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// errorResponse maps err onto the wire. Pipeline errors keep their code so
// the client can rebuild them.
func errorResponse(id string, err error) Response {
	var se *serrors.SyncError
	if errors.As(err, &se) {
		resp := NewErrorResponse(id, ErrCodeSyncError, se.Message)
		resp.Error.Data = se.Code
		return resp
	}
	return NewErrorResponse(id, ErrCodeInternalError, err.Error())
}

// asError converts a wire error back into a Go error. Any error carrying
// a pipeline code in Data, including invalid params, is rebuilt.
func (e *Error) asError() error {
	if e.Data != "" {
		return serrors.New(e.Data, e.Message, nil)
	}
	return e
}

// ListJobsParams selects jobs from one queue list.
type ListJobsParams struct {
	Queue string `json:"queue"`
	Limit int    `json:"limit,omitempty"`
}

// ClearQueueParams names the list to empty.
type ClearQueueParams struct {
	Queue string `json:"queue"`
}

// ReindexParams controls a full reindex. Without Wait the reindex runs in
// the background and progress is reported through stats.
type ReindexParams struct {
	Wait bool `json:"wait,omitempty"`
}

// EnqueueParams is a change to enqueue.
type EnqueueParams struct {
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// NewJob converts the params to a queue job.
func (p EnqueueParams) NewJob() queue.NewJob {
	return queue.NewJob{
		Entity:    p.Entity,
		Operation: queue.Operation(p.Operation),
		Payload:   p.Payload,
	}
}

// UpdateConfigParams is a partial sync config update. Durations use Go
// duration syntax ("30s", "5m").
type UpdateConfigParams struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	BatchSize      *int   `json:"batch_size,omitempty"`
	Interval       string `json:"interval,omitempty"`
	MaxRetries     *int   `json:"max_retries,omitempty"`
	RetryDelay     string `json:"retry_delay,omitempty"`
	IndexBatchSize *int   `json:"index_batch_size,omitempty"`
}

// Patch converts the params into an orchestrator patch.
func (p UpdateConfigParams) Patch() (orchestrator.ConfigPatch, error) {
	patch := orchestrator.ConfigPatch{
		Enabled:        p.Enabled,
		BatchSize:      p.BatchSize,
		MaxRetries:     p.MaxRetries,
		IndexBatchSize: p.IndexBatchSize,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **time.Duration
	}{
		{"interval", p.Interval, &patch.Interval},
		{"retry_delay", p.RetryDelay, &patch.RetryDelay},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return patch, serrors.ValidationError(fmt.Sprintf("invalid %s %q", f.name, f.raw), err)
		}
		*f.dst = &d
	}
	return patch, nil
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong   bool   `json:"pong"`
	PID    int    `json:"pid"`
	Uptime string `json:"uptime"`
}

// CountResult reports how many jobs an operation touched.
type CountResult struct {
	Count int `json:"count"`
}

// EnqueueResult carries the new job id.
type EnqueueResult struct {
	ID string `json:"id"`
}

// ReindexResult is returned by reindex. Result is set when Wait was true.
type ReindexResult struct {
	Started bool                     `json:"started"`
	Result  *orchestrator.SyncResult `json:"result,omitempty"`
}
