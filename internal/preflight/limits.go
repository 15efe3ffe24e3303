package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the minimum file descriptor limit. The queue
// database, the index segments and one socket per control request all
// hold descriptors.
const MinFileDescriptors = 256

// MaxSocketPathLen is the portable limit for a Unix socket path
// (sun_path is 104 bytes on macOS and 108 on Linux, including the NUL).
const MaxSocketPathLen = 103

// CheckFileDescriptors checks the soft RLIMIT_NOFILE.
func (c *Checker) CheckFileDescriptors() CheckResult {
	const name = "file_descriptors"

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return fail(name, fmt.Sprintf("failed to check file descriptor limit: %v", err))
	}

	msg := fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		r := fail(name, msg)
		r.Details = "Run 'ulimit -n 4096' to increase the limit"
		return r
	}
	return pass(name, msg)
}

// CheckSocketPath checks that the control socket path fits sun_path.
func (c *Checker) CheckSocketPath() CheckResult {
	const name = "socket_path"
	path := c.cfg.Daemon.SocketPath

	if path == "" {
		return fail(name, "daemon.socket_path is empty")
	}
	if len(path) > MaxSocketPathLen {
		r := fail(name, fmt.Sprintf("%d bytes (maximum: %d)", len(path), MaxSocketPathLen))
		r.Details = "Set daemon.socket_path or INDEXSYNC_SOCKET to a shorter path"
		return r
	}
	return pass(name, path)
}
