package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
)

// Pipeline is the orchestrator surface exposed over the socket.
type Pipeline interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	TriggerManualSync(ctx context.Context) orchestrator.SyncResult
	FullReindex(ctx context.Context) (*orchestrator.SyncResult, error)
	StartReindex() error
	Stats(ctx context.Context) orchestrator.Stats
	Status() orchestrator.Status
	HealthCheck(ctx context.Context) orchestrator.Health
	UpdateConfig(patch orchestrator.ConfigPatch) (config.SyncConfig, error)
}

// JobQueue is the queue surface exposed over the socket.
type JobQueue interface {
	Enqueue(ctx context.Context, nj queue.NewJob) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
	List(ctx context.Context, list string, limit int) ([]queue.Job, error)
	RetryAll(ctx context.Context) (int, error)
	Clear(ctx context.Context, list string) (int, error)
}

// Searcher answers search passthrough requests.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// Backend groups what the server dispatches to.
type Backend struct {
	Pipeline Pipeline
	Queue    JobQueue
	Searcher Searcher
}

// Server listens on a Unix socket and answers one request per connection.
type Server struct {
	socketPath string
	timeout    time.Duration
	backend    Backend
	logger     *slog.Logger
	started    time.Time

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath. A nil logger falls back to
// slog.Default().
func NewServer(socketPath string, timeout time.Duration, backend Backend, logger *slog.Logger) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		timeout:    timeout,
		backend:    backend,
		logger:     logger.With(slog.String("component", "control_socket")),
	}
}

// ListenAndServe serves until ctx is cancelled or Close is called, then
// waits for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A previous crash may have left the socket behind.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return serrors.New(serrors.ErrCodeInternal, "failed to listen on "+s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	closed := s.shutdown
	s.mu.Unlock()
	if closed {
		_ = listener.Close()
	}

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("control socket listening", slog.String("socket", s.socketPath))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() {
				break
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// handleConnection reads one request and writes one response.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("failed to set read deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	_ = encoder.Encode(resp)

	s.logger.Debug("request handled",
		slog.String("method", req.Method),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("error", resp.Error != nil))
}

func decodeParams(req Request, dst any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		return serrors.ValidationError("failed to decode params", err)
	}
	return nil
}

// handleRequest dispatches a request.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			return Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		if serrors.GetCode(err) == serrors.ErrCodeInvalidInput {
			resp := errorResponse(req.ID, err)
			resp.Error.Code = ErrCodeInvalidParams
			return resp
		}
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	b := s.backend

	switch req.Method {
	case MethodPing:
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		return PingResult{
			Pong:   true,
			PID:    os.Getpid(),
			Uptime: time.Since(started).Round(time.Second).String(),
		}, nil

	case MethodStart:
		if err := b.Pipeline.Initialize(ctx); err != nil {
			return nil, err
		}
		return b.Pipeline.Status(), nil

	case MethodStop:
		if err := b.Pipeline.Shutdown(ctx); err != nil {
			return nil, err
		}
		return b.Pipeline.Status(), nil

	case MethodSync:
		return b.Pipeline.TriggerManualSync(ctx), nil

	case MethodReindex:
		var p ReindexParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if p.Wait {
			res, err := b.Pipeline.FullReindex(ctx)
			if err != nil {
				return nil, err
			}
			return ReindexResult{Started: true, Result: res}, nil
		}
		if err := b.Pipeline.StartReindex(); err != nil {
			return nil, err
		}
		return ReindexResult{Started: true}, nil

	case MethodStats:
		return b.Pipeline.Stats(ctx), nil

	case MethodHealth:
		return b.Pipeline.HealthCheck(ctx), nil

	case MethodUpdateConfig:
		var p UpdateConfigParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		patch, err := p.Patch()
		if err != nil {
			return nil, err
		}
		return b.Pipeline.UpdateConfig(patch)

	case MethodQueueStats:
		return b.Queue.Stats(ctx)

	case MethodListJobs:
		var p ListJobsParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return b.Queue.List(ctx, p.Queue, p.Limit)

	case MethodRetryFailed:
		n, err := b.Queue.RetryAll(ctx)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil

	case MethodClearQueue:
		var p ClearQueueParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		n, err := b.Queue.Clear(ctx, p.Queue)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil

	case MethodEnqueue:
		var p EnqueueParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		id, err := b.Queue.Enqueue(ctx, p.NewJob())
		if err != nil {
			return nil, err
		}
		return EnqueueResult{ID: id}, nil

	case MethodSearch:
		var p search.Request
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return b.Searcher.Search(ctx, p)
	}

	return nil, &Error{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
