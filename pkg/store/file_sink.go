package store

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultBufferSize = 64 * 1024

// FileSink is a buffered file that encoded streams are written to. It
// tracks the number of bytes written and implements Flush so a stream
// writer can push every frame to the file as it is produced.
type FileSink struct {
	file       *os.File
	writer     *bufio.Writer
	fsyncTimer *time.Timer
	config     FileSinkConfig
	mutex      sync.Mutex
	offset     int64 // Bytes in the file including buffered ones
	closed     bool
}

var _ io.WriteCloser = (*FileSink)(nil)

// NewFileSink creates or truncates the file, and its directory if needed
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	sink := &FileSink{
		file:   file,
		writer: bufio.NewWriterSize(file, config.BufferSize),
		config: config,
	}

	if config.FsyncInterval > 0 {
		sink.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			sink.mutex.Lock()
			defer sink.mutex.Unlock()
			if !sink.closed {
				sink.sync() // Ignore error in timer callback
			}
		})
	}

	return sink, nil
}

// Write buffers p
func (s *FileSink) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}
	n, err := s.writer.Write(p)
	s.offset += int64(n)
	if s.fsyncTimer != nil {
		s.fsyncTimer.Reset(s.config.FsyncInterval)
	}
	return n, err
}

// Flush pushes buffered bytes to the file without an fsync
func (s *FileSink) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	return s.writer.Flush()
}

// Sync flushes and fsyncs the file
func (s *FileSink) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	return s.sync()
}

func (s *FileSink) sync() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Close syncs and closes the file
func (s *FileSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.fsyncTimer != nil {
		s.fsyncTimer.Stop()
	}
	if err := s.sync(); err != nil {
		return errors.Join(err, s.file.Close())
	}
	return s.file.Close()
}

// Abort closes the file without syncing and removes it. A failed stream
// leaves a partial file that no reader should see.
func (s *FileSink) Abort() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.closed {
		s.closed = true
		if s.fsyncTimer != nil {
			s.fsyncTimer.Stop()
		}
		s.file.Close() // the file is removed next
	}
	if err := os.Remove(s.config.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Size returns the number of bytes written, including buffered ones
func (s *FileSink) Size() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.offset
}

// Path returns the file path
func (s *FileSink) Path() string {
	return s.config.FilePath
}
