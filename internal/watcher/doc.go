// Package watcher reloads the configuration file when it changes and
// applies the runtime-mutable settings to the running pipeline.
//
// fsnotify is the primary mechanism. The parent directory is watched rather
// than the file so editors that save by rename are still seen. Where
// fsnotify is unavailable (network mounts, some containers) the file is
// polled for size and modification time instead.
//
// Bursts of events are debounced into a single reload.
//
// Usage:
//
//	w := watcher.NewConfigWatcher(path, orch, watcher.DefaultOptions())
//	go func() { _ = w.Run(ctx) }()
package watcher
