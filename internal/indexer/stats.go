package indexer

import "time"

// Stats is a snapshot of indexer counters. Job counters move at admission,
// batch counters at flush; all reset only on restart.
type Stats struct {
	TotalProcessed          int64      `json:"totalProcessed"`
	TotalSuccess            int64      `json:"totalSuccess"`
	TotalFailed             int64      `json:"totalFailed"`
	AverageProcessingTimeMs float64    `json:"averageProcessingTimeMs"`
	LastProcessedAt         *time.Time `json:"lastProcessedAt,omitempty"`
	BatchesFlushed          int64      `json:"batchesFlushed"`
	BatchesFailed           int64      `json:"batchesFailed"`
	CurrentBatchSize        int        `json:"currentBatchSize"`
	Running                 bool       `json:"running"`
}

type stats struct {
	processed, success, failed    int64
	avg                           time.Duration
	lastProcessedAt               time.Time
	batchesFlushed, batchesFailed int64
}

func (s *stats) record(d time.Duration) {
	s.processed++
	// Running mean over every admitted job.
	s.avg += (d - s.avg) / time.Duration(s.processed)
	s.lastProcessedAt = time.Now()
}

func (s *stats) recordSuccess(d time.Duration) {
	s.record(d)
	s.success++
}

func (s *stats) recordFailure(d time.Duration) {
	s.record(d)
	s.failed++
}

// Stats returns a snapshot of the counters.
func (ix *Indexer) Stats() Stats {
	running := ix.Running()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := Stats{
		TotalProcessed:          ix.stats.processed,
		TotalSuccess:            ix.stats.success,
		TotalFailed:             ix.stats.failed,
		AverageProcessingTimeMs: float64(ix.stats.avg) / float64(time.Millisecond),
		BatchesFlushed:          ix.stats.batchesFlushed,
		BatchesFailed:           ix.stats.batchesFailed,
		CurrentBatchSize:        len(ix.batch),
		Running:                 running,
	}
	if !ix.stats.lastProcessedAt.IsZero() {
		t := ix.stats.lastProcessedAt
		out.LastProcessedAt = &t
	}
	return out
}
