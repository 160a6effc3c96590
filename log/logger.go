package log

import "context"

// Logger defines a standard interface for logging.
// Components receive a Logger at construction time; nothing in the
// sync core writes through a package-global logger.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{}) // Typically os.Exit(1) is called by underlying logger
	With(fields map[string]interface{}) Logger                                          // Returns a new logger with added structured fields
}
