// Package transport moves whole JSON-RPC frames between decaf and its peers.
//
// A Stream hides the framing: newline-delimited JSON over pipes (stdio and
// agent subprocesses) or one frame per websocket message. Writes are safe for
// concurrent use; reads are expected from a single goroutine.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned by WriteFrame after Close.
var ErrClosed = errors.New("transport: stream closed")

// Stream carries whole frames in both directions.
type Stream interface {
	// ReadFrame blocks until the next frame arrives. It returns io.EOF once the
	// peer is gone.
	ReadFrame() ([]byte, error)
	// WriteFrame sends one frame.
	WriteFrame(data []byte) error
	Close() error
}

// LineStream frames messages as newline-delimited JSON.
type LineStream struct {
	reader  *bufio.Reader
	writer  io.Writer
	closers []io.Closer

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewLineStream wraps a reader/writer pair. closers are closed, in order, by Close.
func NewLineStream(r io.Reader, w io.Writer, closers ...io.Closer) *LineStream {
	return &LineStream{
		reader:  bufio.NewReaderSize(r, 64*1024),
		writer:  w,
		closers: closers,
	}
}

// Stdio returns the process's own stdin/stdout as a stream.
func Stdio() *LineStream {
	return NewLineStream(os.Stdin, os.Stdout, os.Stdin)
}

// ReadFrame returns the next non-blank line without its terminator.
func (s *LineStream) ReadFrame() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			// A final unterminated line is still a frame; the error surfaces on the next call.
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteFrame writes data followed by a newline in a single Write call.
func (s *LineStream) WriteFrame(data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("transport: frame contains a newline")
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.writer.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the underlying closers once.
func (s *LineStream) Close() error {
	s.closeOnce.Do(func() {
		// Closers go first: they unblock a writer stuck holding writeMu.
		var errs []error
		for _, c := range s.closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)

		s.writeMu.Lock()
		s.closed = true
		s.writeMu.Unlock()
	})
	return s.closeErr
}

// Pipe returns two connected in-memory streams. Frames written to one are read
// from the other.
func Pipe() (*LineStream, *LineStream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewLineStream(ar, aw, ar, aw)
	b := NewLineStream(br, bw, br, bw)
	return a, b
}
