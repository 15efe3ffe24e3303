package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

func pass(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: msg, Required: true}
}

func fail(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: msg, Required: true}
}

// Checker runs host checks for one configuration.
type Checker struct {
	cfg *config.Config
}

// New creates a Checker for cfg.
func New(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// dataDirs returns the directories the pipeline writes to.
func (c *Checker) dataDirs() []string {
	var dirs []string
	seen := map[string]bool{}
	add := func(path string) {
		if path == "" {
			return
		}
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if c.cfg.Store.Backend == "sqlite" {
		add(c.cfg.Store.Path)
	}
	if c.cfg.Search.Backend == "bleve" {
		add(c.cfg.Search.Path)
	}
	add(c.cfg.Daemon.PIDPath)
	return dirs
}

// RunAll runs every check and returns the results in a stable order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult
	for _, dir := range c.dataDirs() {
		results = append(results, c.CheckWritePermissions(dir))
		results = append(results, c.CheckDiskSpace(dir))
	}
	results = append(results, c.CheckFileDescriptors())
	results = append(results, c.CheckSocketPath())
	results = append(results, c.CheckSourceDatabase(ctx))
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Err summarizes critical failures as a DependencyUnavailable error, or
// returns nil when there are none.
func Err(results []CheckResult) error {
	var failed []string
	for _, r := range results {
		if r.IsCritical() {
			failed = append(failed, r.Name+": "+r.Message)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return serrors.DependencyUnavailable("host", fmt.Errorf("%s", strings.Join(failed, "; "))).
		WithSuggestion("run `indexsync doctor` for details")
}

// SummaryStatus returns ready, ready_with_warnings or failed.
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a human-readable report.
func PrintResults(out io.Writer, results []CheckResult, verbose bool) {
	_, _ = fmt.Fprintln(out, "indexsync system check")
	_, _ = fmt.Fprintln(out)

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(out, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
}

// CheckWritePermissions creates the directory if needed and writes a probe file.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	name := "write:" + dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(name, fmt.Sprintf("cannot create directory: %v", err))
	}
	f, err := os.CreateTemp(dir, ".indexsync-preflight-*")
	if err != nil {
		return fail(name, fmt.Sprintf("permission denied: %v", err))
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return pass(name, "OK")
}

// CheckSourceDatabase opens the configured source read-only and pings it.
// Without a source database the check passes with a warning-free note.
func (c *Checker) CheckSourceDatabase(ctx context.Context) CheckResult {
	const name = "source_database"
	if c.cfg.Source.Database == "" {
		return CheckResult{Name: name, Status: StatusPass, Message: "not configured (reindex only recreates the index)"}
	}

	src, err := source.NewSQLiteSource(c.cfg.Source.Database, c.cfg.Source.Tables)
	if err != nil {
		return fail(name, err.Error())
	}
	defer func() { _ = src.Close() }()

	if err := src.Ping(ctx); err != nil {
		r := fail(name, "cannot open "+c.cfg.Source.Database)
		r.Details = err.Error()
		return r
	}
	return pass(name, fmt.Sprintf("%s (%d entities)", c.cfg.Source.Database, len(src.Entities())))
}
