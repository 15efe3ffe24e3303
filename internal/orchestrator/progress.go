package orchestrator

import (
	"sync"
	"time"
)

// Stage names the step an active operation is in.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageRecreating Stage = "recreating_index"
	StageScanning   Stage = "scanning"
	StageDraining   Stage = "draining"
	StageFinishing  Stage = "finishing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ProgressSnapshot is an immutable view of the active operation.
type ProgressSnapshot struct {
	Operation      string `json:"operation,omitempty"`
	Stage          Stage  `json:"stage"`
	Percent        int    `json:"percent"`
	RecordsTotal   int    `json:"records_total,omitempty"`
	RecordsDone    int    `json:"records_done,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// progress tracks the 0-100 indicator of the current sync operation.
type progress struct {
	mu sync.RWMutex

	operation    string
	stage        Stage
	percent      int
	recordsTotal int
	recordsDone  int
	startTime    time.Time
	errorMessage string
}

func newProgress() *progress {
	return &progress{stage: StageIdle}
}

func (p *progress) begin(operation string, stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.operation = operation
	p.stage = stage
	p.percent = 0
	p.recordsTotal = 0
	p.recordsDone = 0
	p.errorMessage = ""
	p.startTime = time.Now()
}

func (p *progress) set(stage Stage, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.percent = max(0, min(percent, 100))
}

func (p *progress) setTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordsTotal = total
}

// advance adds done records and maps them into the [from, to] percent band.
func (p *progress) advance(done, from, to int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recordsDone += done
	if p.recordsTotal > 0 {
		pct := from + (to-from)*p.recordsDone/p.recordsTotal
		p.percent = min(pct, to)
	}
}

func (p *progress) fail(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = StageFailed
	p.errorMessage = message
}

func (p *progress) snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(time.Since(p.startTime).Seconds())
	}
	return ProgressSnapshot{
		Operation:      p.operation,
		Stage:          p.stage,
		Percent:        p.percent,
		RecordsTotal:   p.recordsTotal,
		RecordsDone:    p.recordsDone,
		ElapsedSeconds: elapsed,
		ErrorMessage:   p.errorMessage,
	}
}
