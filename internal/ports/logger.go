package ports

import "context"

// Logger defines the logging contract used across the application.
// Injecting it keeps components testable and independent of any concrete
// logging backend.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error with a message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
