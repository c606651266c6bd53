package store

import (
	"time"
)

// FileSinkConfig holds configuration for a stream file sink
type FileSinkConfig struct {
	FilePath      string        // Path of the stream file
	FsyncInterval time.Duration // How often to fsync (0 = on Flush and Close only)
	BufferSize    int           // Write buffer size
}

// Errors
var (
	ErrSinkClosed = &SinkError{"sink is closed"}
)

// SinkError represents a file sink error
type SinkError struct {
	Message string
}

func (e *SinkError) Error() string {
	return e.Message
}
