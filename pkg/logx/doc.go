// Package logx provides structured logging for the daemon.
//
// It wraps zerolog behind a small Logger/Field API so call sites don't
// depend on the sink configuration (console, file) chosen at runtime.
package logx
