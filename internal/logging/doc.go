// Package logging provides structured diagnostics using uber/zap.
//
// Two modes are supported:
//   - Production: JSON lines on stderr
//   - Development: colored console output on stderr
//
// Script output written with print() goes to stdout and never shares a
// stream with diagnostics, so a parent process can read results line by
// line without filtering log noise.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Warn("finalizer close failed", zap.Error(err))
package logging
