package xmlout

import (
	"fmt"
	"strings"
)

// SpawnError is returned when the compression command cannot be started
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("unable to start compression command %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError is returned when the sink accepts fewer bytes than requested
type WriteError struct {
	Wanted  int
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to write to output stream (%d of %d bytes): %v", e.Written, e.Wanted, e.Err)
	}
	return fmt.Sprintf("failed to write to output stream (%d of %d bytes)", e.Written, e.Wanted)
}

func (e *WriteError) Unwrap() error { return e.Err }

// CloseError is returned when the compression command exits abnormally
type CloseError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CloseError) Error() string {
	msg := fmt.Sprintf("compression command %q exited abnormally (code %d)", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CloseError) Unwrap() error { return e.Err }

// XMLWriteError wraps a failure in the XML layer with the operation that
// failed, e.g. "begin", "end", "attribute:int64", "text"
type XMLWriteError struct {
	Op  string
	Err error
}

func (e *XMLWriteError) Error() string {
	return fmt.Sprintf("xml %s failed: %v", e.Op, e.Err)
}

func (e *XMLWriteError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &XMLWriteError{Op: op, Err: err}
}
