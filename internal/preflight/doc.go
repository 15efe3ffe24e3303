// Package preflight validates the host before the pipeline starts: the data
// directories are writable, there is disk space for the queue database and
// the index, the file descriptor limit is sane, the control socket path fits
// in a Unix socket address and the source database can be opened.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
