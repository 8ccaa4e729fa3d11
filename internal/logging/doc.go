// Package logging provides structured logging for codestatus.
//
// Both binaries log JSON lines through [Logger], a thin wrapper around
// log/slog that carries persistent context attributes. The front end writes
// to a file in its state directory (optionally through a size-rotating
// [RotatingWriter]); the presence worker writes to stderr with
// [NewStreamLogger], and the supervisor forwards those lines into its own
// log tagged with the worker ID.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(config.StateDir(), "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithComponent("supervisor").WithWorker(id).Info("worker started", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"worker started","component":"supervisor","worker_id":"...","pid":4242}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  5,
//	    MaxBackups: 2,
//	    Compress:   true,
//	})
//
// Rotated files are named codestatus.log.1, codestatus.log.2, and so on,
// with .1 being the most recent. Compressed backups gain a .gz suffix.
//
// # Reading Logs Back
//
// [AggregateLogs] reads the active file and every backup, [FilterLogs]
// narrows the result, and [WriteLogEntries] renders it as json, text or
// csv. The `codestatus logs` command is built on these three.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewStreamLogger] over a
// bytes.Buffer to assert on emitted entries.
package logging
