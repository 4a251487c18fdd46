// Package logx is the structured logging layer of swamptimers.
//
// Logger wraps zerolog with field helpers and derived loggers. Service owns
// the sinks (console, JSON file and an optional Telegram forwarder) and can
// swap them at runtime when the config file changes.
package logx
