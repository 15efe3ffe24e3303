package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
)

const barWidth = 30

// StatusRenderer prints pipeline state.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	jsonOut bool
}

// NewStatusRenderer creates a status renderer. With jsonOut set every
// Render method writes indented JSON instead of text.
func NewStatusRenderer(out io.Writer, noColor, jsonOut bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		jsonOut: jsonOut,
	}
}

// RenderJSON writes v as indented JSON.
func (r *StatusRenderer) RenderJSON(v any) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (r *StatusRenderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *StatusRenderer) header(title string) {
	r.printf("%s\n\n", r.styles.Header.Render(title))
}

// RenderHealth prints a health report.
func (r *StatusRenderer) RenderHealth(h orchestrator.Health) error {
	if r.jsonOut {
		return r.RenderJSON(h)
	}

	r.header("Health: " + r.renderStatus(string(h.Status)))
	r.printf("  Search engine:  %s (%s, %d docs, breaker %s)\n",
		r.upDown(h.SearchEngineUp), h.Search.Status, h.Search.DocCount, h.Search.Breaker)
	r.printf("  Queue:          %s\n", r.upDown(h.QueueUp))
	r.printf("  Indexer:        %s\n", r.runningStopped(h.IndexerRunning))
	r.printf("  Sync service:   %s\n", h.State)
	if h.FeedConnected != nil {
		r.printf("  Change feed:    %s\n", r.upDown(*h.FeedConnected))
	}
	r.renderErrors(h.Errors)
	return nil
}

// RenderStatus prints the sync state.
func (r *StatusRenderer) RenderStatus(s orchestrator.Status) error {
	if r.jsonOut {
		return r.RenderJSON(s)
	}

	r.header("Sync Status: " + r.renderStatus(string(s.State)))
	r.printf("  Total synced:   %d\n", s.TotalSynced)
	if s.LastSyncAt != nil {
		r.printf("  Last sync:      %s\n", formatTime(*s.LastSyncAt))
	}
	if s.NextSyncAt != nil {
		r.printf("  Next sync:      in %s\n", formatDuration(time.Until(*s.NextSyncAt)))
	}
	if s.IsSyncing {
		r.printf("\n")
		r.renderProgress(s.Progress)
	}
	if s.LastResult != nil {
		r.printf("\n  Last reindex:   %s\n", r.resultLine(*s.LastResult))
	}
	r.renderErrors(s.Errors)
	return nil
}

// RenderStats prints every pipeline counter.
func (r *StatusRenderer) RenderStats(s orchestrator.Stats) error {
	if r.jsonOut {
		return r.RenderJSON(s)
	}

	r.header("Indexer")
	ix := s.Indexer
	r.printf("  Running:        %s\n", r.runningStopped(ix.Running))
	r.printf("  Processed:      %d (%d ok, %d failed)\n", ix.TotalProcessed, ix.TotalSuccess, ix.TotalFailed)
	r.printf("  Avg time:       %.2f ms\n", ix.AverageProcessingTimeMs)
	r.printf("  Batches:        %d flushed, %d failed\n", ix.BatchesFlushed, ix.BatchesFailed)
	r.printf("  Current batch:  %d\n", ix.CurrentBatchSize)
	if ix.LastProcessedAt != nil {
		r.printf("  Last processed: %s\n", formatTime(*ix.LastProcessedAt))
	}
	r.printf("\n")

	if s.QueueError != "" {
		r.header("Queue")
		r.printf("  %s\n\n", r.styles.Error.Render(s.QueueError))
	} else {
		r.renderQueue(s.Queue)
		r.printf("\n")
	}
	if s.Feed != nil {
		r.header("Change Feed")
		r.printf("  Received:       %d (%d enqueued, %d rejected)\n\n",
			s.Feed.Received, s.Feed.Enqueued, s.Feed.Rejected)
	}
	return r.RenderStatus(s.Sync)
}

// RenderQueueStats prints list lengths.
func (r *StatusRenderer) RenderQueueStats(s queue.Stats) error {
	if r.jsonOut {
		return r.RenderJSON(s)
	}
	r.renderQueue(s)
	return nil
}

func (r *StatusRenderer) renderQueue(s queue.Stats) {
	r.header("Queue")
	r.printf("  Pending:        %d\n", s.Pending)
	r.printf("  Processing:     %d\n", s.Processing)
	r.printf("  Completed:      %d\n", s.Completed)
	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = r.styles.Error.Render(failed)
	}
	r.printf("  Failed:         %s\n", failed)
	r.printf("  Total:          %d\n", s.Total)
}

// RenderJobs prints a job listing.
func (r *StatusRenderer) RenderJobs(list string, jobs []queue.Job) error {
	if r.jsonOut {
		return r.RenderJSON(jobs)
	}

	r.header(fmt.Sprintf("%s jobs (%d)", list, len(jobs)))
	if len(jobs) == 0 {
		r.printf("  %s\n", r.styles.Dim.Render("(empty)"))
		return nil
	}
	for _, j := range jobs {
		r.printf("  %s  %-9s %-8s %s\n",
			r.styles.Label.Render(j.ID),
			j.Entity,
			j.Operation,
			formatTime(j.EnqueuedAt))
		if j.RetryCount > 0 {
			r.printf("      retries: %d\n", j.RetryCount)
		}
		if j.Error != "" {
			r.printf("      %s\n", r.styles.Error.Render(j.Error))
		}
	}
	return nil
}

// RenderSyncResult prints the outcome of a sync or reindex.
func (r *StatusRenderer) RenderSyncResult(res orchestrator.SyncResult) error {
	if r.jsonOut {
		return r.RenderJSON(res)
	}
	r.printf("%s\n", r.resultLine(res))
	r.renderErrors(res.Errors)
	return nil
}

// RenderSearch prints search hits.
func (r *StatusRenderer) RenderSearch(res search.Result) error {
	if r.jsonOut {
		return r.RenderJSON(res)
	}

	r.header(fmt.Sprintf("%d hits", res.Total))
	for _, h := range res.Hits {
		r.printf("  %s %s\n", r.styles.Success.Render(h.ID), r.styles.Dim.Render(fmt.Sprintf("(%.3f)", h.Score)))
		keys := make([]string, 0, len(h.Fields))
		for k := range h.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.printf("      %s %v\n", r.styles.Label.Render(k+":"), h.Fields[k])
		}
	}
	return nil
}

// RenderConfig prints the sync configuration.
func (r *StatusRenderer) RenderConfig(c config.SyncConfig) error {
	if r.jsonOut {
		return r.RenderJSON(c)
	}
	r.header("Sync Config")
	r.printf("  Enabled:        %t\n", c.Enabled)
	r.printf("  Batch size:     %d\n", c.BatchSize)
	r.printf("  Interval:       %s\n", c.Interval)
	r.printf("  Max retries:    %d\n", c.MaxRetries)
	r.printf("  Retry delay:    %s\n", c.RetryDelay)
	return nil
}

func (r *StatusRenderer) resultLine(res orchestrator.SyncResult) string {
	line := fmt.Sprintf("%d records in %s", res.Count, formatDuration(res.Duration))
	if res.Success {
		return r.styles.Success.Render("ok") + "  " + line
	}
	return r.styles.Error.Render("failed") + "  " + line
}

func (r *StatusRenderer) renderProgress(p orchestrator.ProgressSnapshot) {
	pct := min(max(p.Percent, 0), 100)
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	r.printf("  %s %s  %s\n", r.styles.Bar.Render(bar), r.styles.Header.Render(fmt.Sprintf("%3d%%", pct)), p.Stage)
	if p.RecordsTotal > 0 {
		r.printf("  %s\n", r.styles.Label.Render(fmt.Sprintf("%d / %d records", p.RecordsDone, p.RecordsTotal)))
	}
}

func (r *StatusRenderer) renderErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	r.printf("\n  %s\n", r.styles.Warning.Render(fmt.Sprintf("Errors (%d):", len(errs))))
	for _, e := range errs {
		r.printf("    - %s\n", e)
	}
}

// renderStatus formats a status word with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "healthy", "running", "green":
		return r.styles.Success.Render(status)
	case "degraded", "stopped", "syncing", "initializing", "yellow":
		return r.styles.Warning.Render(status)
	case "unhealthy", "red":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func (r *StatusRenderer) upDown(up bool) string {
	if up {
		return r.styles.Success.Render("up")
	}
	return r.styles.Error.Render("down")
}

func (r *StatusRenderer) runningStopped(running bool) string {
	if running {
		return r.styles.Success.Render("running")
	}
	return r.styles.Warning.Render("stopped")
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// formatDuration renders d at a human granularity.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
