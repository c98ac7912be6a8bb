package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrBindFlags     ErrorCode = "bind_flags_failed"
	ErrReadConfig    ErrorCode = "read_config_failed"
	ErrParseFlags    ErrorCode = "parse_flags_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Panel errors
	ErrOpenPort      ErrorCode = "open_port_failed"
	ErrConfigurePort ErrorCode = "configure_port_failed"
	ErrReadFrame     ErrorCode = "read_frame_failed"
	ErrWriteFrame    ErrorCode = "write_frame_failed"
	ErrFlushFrame    ErrorCode = "flush_frame_failed"
	ErrControlLine   ErrorCode = "control_line_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read configuration",
	ErrParseFlags:      "Failed to parse command line flags",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrOpenPort:        "Failed to open serial port",
	ErrConfigurePort:   "Failed to configure serial port",
	ErrReadFrame:       "Failed to read from serial port",
	ErrWriteFrame:      "Failed to write reply frame",
	ErrFlushFrame:      "Failed to flush reply frame",
	ErrControlLine:     "Failed to toggle control line",
	ErrOperationFailed: "Operation failed",
	ErrTimeout:         "Operation timed out",
	ErrInitMetrics:     "Failed to initialize metrics",
	ErrCollectMetrics:  "Failed to collect metrics data",
	ErrCloseMetrics:    "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
