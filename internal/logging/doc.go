// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"uvc":     "debug",  // Per-module overrides
//			"encoder": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("uvc")
//	logger.Info("Stream started", "format", "YUYV", "width", 1280)
//	logger.Debug("Control request", "selector", sel)
//	logger.Error("Stream failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("camera").With("session", id)
//	logger.Info("Session opened")  // Includes session in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → MultiHandler (both)
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t webcamd              # All webcamd logs
//	journalctl -t webcamd -f           # Follow live
//	journalctl -t webcamd --since "5m" # Last 5 minutes
//	journalctl -t webcamd -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t webcamd MODULE=uvc
//	journalctl -t webcamd MODULE=encoder
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	uvc = "debug"
//	camera = "warn"
package logging
