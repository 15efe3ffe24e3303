package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/queue"
)

// ChangeEvent is the wire form of a change published on the feed subject.
type ChangeEvent struct {
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// Enqueuer accepts new jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, nj queue.NewJob) (string, error)
}

// FeedStats counts messages seen by the feed.
type FeedStats struct {
	Received int64 `json:"received"`
	Enqueued int64 `json:"enqueued"`
	Rejected int64 `json:"rejected"`
}

// NATSFeed subscribes to change events and enqueues one job per event.
type NATSFeed struct {
	url     string
	subject string
	queue   Enqueuer
	logger  *slog.Logger

	received, enqueued, rejected atomic.Int64

	mu  sync.Mutex
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSFeed creates a feed. Call Start to connect.
func NewNATSFeed(url, subject string, q Enqueuer, logger *slog.Logger) *NATSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSFeed{
		url:     url,
		subject: subject,
		queue:   q,
		logger:  logger.With(slog.String("component", "nats_feed")),
	}
}

// Start connects and subscribes. Reconnects are unbounded.
func (f *NATSFeed) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nc != nil {
		return nil
	}

	nc, err := nats.Connect(f.url,
		nats.Name("indexsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				f.logger.Warn("change feed disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			f.logger.Info("change feed reconnected")
		}),
	)
	if err != nil {
		return serrors.NotConnected("change feed", err)
	}

	sub, err := nc.Subscribe(f.subject, f.onMessage)
	if err != nil {
		nc.Close()
		return serrors.New(serrors.ErrCodeSourceFailed, "failed to subscribe to change feed", err).
			WithDetail("subject", f.subject)
	}

	f.nc, f.sub = nc, sub
	f.logger.Info("change feed subscribed", slog.String("subject", f.subject))
	return nil
}

func (f *NATSFeed) onMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := f.Handle(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	reply := map[string]string{"id": id}
	if err != nil {
		reply = map[string]string{"error": err.Error()}
	}
	if data, merr := json.Marshal(reply); merr == nil {
		_ = msg.Respond(data)
	}
}

// Handle decodes one change event and enqueues it, returning the job id.
// Malformed events are rejected and counted.
func (f *NATSFeed) Handle(ctx context.Context, data []byte) (string, error) {
	f.received.Add(1)

	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		f.rejected.Add(1)
		f.logger.Warn("malformed change event", slog.String("error", err.Error()))
		return "", serrors.ValidationError("malformed change event", err)
	}

	id, err := f.queue.Enqueue(ctx, queue.NewJob{
		Entity:    ev.Entity,
		Operation: queue.Operation(ev.Operation),
		Payload:   ev.Payload,
	})
	if err != nil {
		f.rejected.Add(1)
		f.logger.Warn("change event not enqueued",
			append(serrors.LogAttrs(err), slog.String("entity", ev.Entity))...)
		return "", err
	}

	f.enqueued.Add(1)
	f.logger.Debug("change event enqueued",
		slog.String("job_id", id),
		slog.String("entity", ev.Entity),
		slog.String("operation", ev.Operation))
	return id, nil
}

// Stats returns message counters.
func (f *NATSFeed) Stats() FeedStats {
	return FeedStats{
		Received: f.received.Load(),
		Enqueued: f.enqueued.Load(),
		Rejected: f.rejected.Load(),
	}
}

// Connected reports whether the feed currently has a live connection.
func (f *NATSFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nc != nil && f.nc.IsConnected()
}

// Close unsubscribes and drains the connection.
func (f *NATSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nc == nil {
		return nil
	}
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	err := f.nc.Drain()
	f.nc, f.sub = nil, nil
	return err
}
