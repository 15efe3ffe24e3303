package cmd

import (
	"errors"
	"log/slog"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/daemon"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/indexer"
	"github.com/Aman-CERP/indexsync/internal/liststore"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// pipeline is every component of a serving process.
type pipeline struct {
	store   liststore.Store
	queue   *queue.Queue
	gateway *search.BleveGateway
	indexer *indexer.Indexer
	source  source.Scanner
	feed    *source.NATSFeed
	orch    *orchestrator.Orchestrator

	closers []func() error
}

// buildPipeline wires the components selected by cfg. Nothing is started.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (p *pipeline, err error) {
	p = &pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
			p = nil
		}
	}()

	switch cfg.Store.Backend {
	case "memory":
		p.store = liststore.NewMemoryStore()
	default:
		s, err := liststore.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return p, serrors.New(serrors.ErrCodeStoreFailed, "failed to open list store", err).
				WithDetail("path", cfg.Store.Path)
		}
		p.store = s
	}
	p.closers = append(p.closers, p.store.Close)

	p.queue = queue.New(p.store, cfg.Queue.Name, queue.WithLogger(logger))

	indexPath := cfg.Search.Path
	if cfg.Search.Backend == "memory" {
		indexPath = ""
	}
	p.gateway, err = search.NewBleveGateway(indexPath,
		search.WithCacheSize(cfg.Search.CacheSize),
		search.WithBreaker(cfg.Search.BreakerFailures, cfg.Search.BreakerReset),
		search.WithLogger(logger))
	if err != nil {
		return p, err
	}
	p.closers = append(p.closers, p.gateway.Close)

	mapper := mapping.NewMapper()
	p.indexer = indexer.New(p.queue, p.gateway, mapper, indexer.Config{
		BatchSize:      cfg.Indexer.BatchSize,
		BatchTimeout:   cfg.Indexer.BatchTimeout,
		DequeueTimeout: cfg.Queue.DequeueTimeout,
		MaxRetries:     cfg.Sync.MaxRetries,
		ErrorBackoff:   cfg.Queue.ErrorBackoff,
	}, logger)

	if cfg.Source.Database != "" {
		src, err := source.NewSQLiteSource(cfg.Source.Database, cfg.Source.Tables)
		if err != nil {
			return p, err
		}
		p.source = src
		p.closers = append(p.closers, src.Close)
	} else {
		p.source = source.NewMemorySource()
	}

	if cfg.Source.NATSURL != "" {
		p.feed = source.NewNATSFeed(cfg.Source.NATSURL, cfg.Source.Subject, p.queue, logger)
		p.closers = append(p.closers, p.feed.Close)
	}

	deps := orchestrator.Deps{
		Queue:   p.queue,
		Gateway: p.gateway,
		Indexer: p.indexer,
		Source:  p.source,
		Mapper:  mapper,
		Logger:  logger,
	}
	if p.feed != nil {
		deps.Feed = p.feed
	}
	p.orch = orchestrator.New(deps, cfg.Sync)

	return p, nil
}

// Backend exposes the pipeline to the control socket.
func (p *pipeline) Backend() daemon.Backend {
	return daemon.Backend{Pipeline: p.orch, Queue: p.queue, Searcher: p.gateway}
}

// Close releases resources in reverse order of acquisition.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
