// Package logging sets up structured JSON logging with size-based file
// rotation for indexsync.
//
// Foreground commands log to stderr. The daemon logs only to
// ~/.indexsync/logs/indexsync.log, which the logs command tails.
package logging
