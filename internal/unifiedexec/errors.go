package unifiedexec

import "errors"

var (
	// ErrUnknownProcessID is returned when an operation references a
	// process_id that is neither live nor reserved.
	ErrUnknownProcessID = errors.New("unifiedexec: unknown process id")
	// ErrNotTTY is returned by WriteStdin against a non-TTY process.
	ErrNotTTY = errors.New("unifiedexec: process is not a tty, cannot write stdin")
	// ErrStdinClosed is returned when writing to a process whose stdin pipe
	// has already been closed.
	ErrStdinClosed = errors.New("unifiedexec: stdin closed")
)

// SpawnError wraps a failure to start a child process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string { return "unifiedexec: spawn " + e.Command + ": " + e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }
