// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance for both the HTTP service and the CLI
// commands, and integrates with the Fiber web framework.
//
// # Context Awareness
//
// Every API request carries a RayID (request ID). The WithRayID helper extracts it
// from a Fiber context and attaches it to the log entry, so every line written while
// serving one restore request can be correlated.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Format: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Server started")
//
//	// In a request handler:
//	l := logger.WithRayID(log, c)
//	l.Error("Apply failed", zap.Error(err))
package logger
