package xmlout

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Sink is the byte destination the XML writer emits into
type Sink interface {
	io.Writer
	Close() error
}

// maxStderr bounds how much compressor output is kept for error messages
const maxStderr = 4096

var errEmptyCommand = errors.New("compression command is empty")

// ShellEscape backslash-escapes backslashes and double quotes so the path
// can sit inside a double-quoted shell word. Nothing else is escaped: `$`
// and backticks are still live inside double quotes.
func ShellEscape(path string) string {
	if !strings.ContainsAny(path, `\"`) {
		return path
	}
	var b strings.Builder
	b.Grow(len(path) + 8)
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// BuildCommand composes `<template> > "<escaped path>"`
func BuildCommand(template, path string) string {
	return template + ` > "` + ShellEscape(path) + `"`
}

// PipeSink feeds a compression subprocess through its standard input
type PipeSink struct {
	command string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	eg      errgroup.Group

	written atomic.Int64
	closed  bool
	err     error
}

// OpenSink starts `/bin/sh -c '<template> > "<path>"'` and returns a sink
// writing into the command's standard input
func OpenSink(template, path string) (*PipeSink, error) {
	if strings.TrimSpace(template) == "" {
		return nil, &SpawnError{Command: template, Err: errEmptyCommand}
	}
	command := BuildCommand(template, path)
	cmd := exec.Command("/bin/sh", "-c", command)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	s := &PipeSink{
		command: command,
		cmd:     cmd,
		stdin:   stdin,
		stderr:  &bytes.Buffer{},
	}
	s.eg.Go(func() error {
		_, err := io.Copy(&limitedWriter{buf: s.stderr, max: maxStderr}, stderrPipe)
		return err
	})
	return s, nil
}

// Command returns the full shell command line
func (s *PipeSink) Command() string {
	return s.command
}

// BytesWritten returns the number of bytes accepted so far
func (s *PipeSink) BytesWritten() int64 {
	return s.written.Load()
}

// Write forwards p to the subprocess. A short write is an error.
func (s *PipeSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, &WriteError{Wanted: len(p), Err: os.ErrClosed}
	}
	n, err := s.stdin.Write(p)
	s.written.Add(int64(n))
	if err != nil || n < len(p) {
		return n, &WriteError{Wanted: len(p), Written: n, Err: err}
	}
	return n, nil
}

// Close closes the subprocess input and waits for it to exit. Calling
// Close again returns the first result without doing anything.
func (s *PipeSink) Close() error {
	if s.closed {
		return s.err
	}
	s.closed = true

	inErr := s.stdin.Close()
	// stderr must be drained before Wait closes the pipe
	_ = s.eg.Wait()
	waitErr := s.cmd.Wait()

	switch {
	case waitErr != nil:
		ce := &CloseError{Command: s.command, ExitCode: -1, Stderr: s.stderr.String(), Err: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		s.err = ce
	case inErr != nil && !errors.Is(inErr, os.ErrClosed):
		s.err = &CloseError{Command: s.command, Stderr: s.stderr.String(), Err: inErr}
	}
	return s.err
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
