// Package log provides certd's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that routes records through the
// formatter/outputs pipeline, so output stays consistent across the engine,
// the transports and libraries that write to the standard logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("sessions"), log.Str("session_id", id))
//	l.Info("session started", log.Int("total", 120))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and console/null outputs. Keys listed in Config.Redact are
// replaced with "[REDACTED]" before formatting.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger (Pebble writes through the
// standard logger), use ToStdLogger or RedirectStdLog.
package log
