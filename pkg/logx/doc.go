// Package logx is standupbot's structured logging.
//
// Logger wraps zerolog with field helpers and a live root that follows
// Service.Apply. Sinks: console (human readable), file (JSON lines) and an
// optional chat sink that forwards warnings to an admin chat, rate limited
// and never blocking the caller.
package logx
