package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/indexer"
	"github.com/Aman-CERP/indexsync/internal/liststore"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// testSocketPath returns a socket path short enough for sun_path.
func testSocketPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join("/tmp", fmt.Sprintf("indexsync-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(p) })
	return p
}

type testPipeline struct {
	backend Backend
	queue   *queue.Queue
	orch    *orchestrator.Orchestrator
	source  *source.MemorySource
}

// newTestPipeline wires an in-memory pipeline.
func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	store := liststore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	q := queue.New(store, "daemon-test")

	gw, err := search.NewBleveGateway("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	mapper := mapping.NewMapper()
	ix := indexer.New(q, gw, mapper, indexer.Config{
		BatchSize:      1,
		BatchTimeout:   20 * time.Millisecond,
		DequeueTimeout: 20 * time.Millisecond,
		MaxRetries:     2,
		ErrorBackoff:   10 * time.Millisecond,
	}, nil)

	src := source.NewMemorySource()
	orch := orchestrator.New(orchestrator.Deps{
		Queue:   q,
		Gateway: gw,
		Indexer: ix,
		Source:  src,
		Mapper:  mapper,
	}, config.SyncConfig{
		BatchSize:  100,
		Interval:   time.Hour,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	return &testPipeline{
		backend: Backend{Pipeline: orch, Queue: q, Searcher: gw},
		queue:   q,
		orch:    orch,
		source:  src,
	}
}

// startServer serves backend on a fresh socket until the test ends.
func startServer(t *testing.T, backend Backend) (*Client, string) {
	t.Helper()
	socketPath := testSocketPath(t)
	srv := NewServer(socketPath, 5*time.Second, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	client := NewClient(Config{SocketPath: socketPath, Timeout: 5 * time.Second})
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return client, socketPath
}
