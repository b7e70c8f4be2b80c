// Package logging provides a minimal logging interface and adapters for
// WanderPlan.
//
// The Logger interface defines the structured logging methods (Debug, Info,
// Warn, Error) that the graph, runner and stores use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(logging.LevelInfo, "json")
//	r := runner.New(g, func(o *runner.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
