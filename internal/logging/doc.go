// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Keeps the most recent entries in a ring buffer served by the HTTP API
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"output":  "debug",
//			"encoder": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("output").With("output", name)
//	logger.Info("Output created", "type", typeID)
//
// Loggers obtained before Initialize keep working; their level follows the
// configuration once it is applied.
//
// # Viewing Logs
//
//	journalctl -t mediaout -f
//	journalctl -t mediaout MODULE=output OUTPUT=recorder
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	output = "debug"
//	api = "warn"
package logging
