package api

import (
	"time"

	"github.com/ssargent/colstream/pkg/ingest"
	"github.com/ssargent/colstream/pkg/storage"
)

// StreamContentType is the media type of an encoded stream
const StreamContentType = "application/vnd.apache.arrow.stream"

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind           string
	Port           int
	APIKey         string // empty disables authentication
	MaxUploadBytes int64
	MaxConcurrent  int // concurrent encodes; zero means unlimited
	Encode         ingest.Options
	ShutdownGrace  time.Duration
}

// StreamInfo is the JSON form of an archive entry
type StreamInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Rows      int64     `json:"rows"`
	Batches   int       `json:"batches"`
	Bytes     int64     `json:"bytes"`
	Stored    int64     `json:"stored_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func streamInfo(e storage.Entry) StreamInfo {
	return StreamInfo{
		ID:        e.ID.String(),
		Name:      e.Name,
		Rows:      e.Rows,
		Batches:   e.Batches,
		Bytes:     e.Bytes,
		Stored:    e.Stored,
		CreatedAt: e.CreatedAt,
	}
}
