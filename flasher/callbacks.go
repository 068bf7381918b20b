package flasher

import "time"

// Phases reported through ProgressCallback.
const (
	PhaseReset       = "reset"
	PhaseProgramming = "programming"
	PhaseExiting     = "exiting"
	PhaseComplete    = "complete"
)

// Progress contains information about a flashing run in flight.
type Progress struct {
	// Phase is one of the Phase* constants.
	Phase string

	// CurrentPage is the number of pages finished so far.
	CurrentPage int

	// TotalPages is the number of 128-byte pages in the image.
	TotalPages int

	// Percentage is the completion percentage (0.0 to 100.0).
	Percentage float64

	// BytesWritten is the total number of bytes programmed so far.
	BytesWritten int

	// ElapsedTime is the time elapsed since the run started.
	ElapsedTime time.Duration
}

// ProgressCallback is called during a flashing run to report progress.
// Implementations should return quickly.
type ProgressCallback func(Progress)

// Logger is an optional logging interface so the programmer can feed any
// logging framework.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}
