package api

import (
	"github.com/segmentio/ksuid"

	"github.com/ssargent/colstream/pkg/storage"
)

// StreamArchive defines the archive operations the API serves.
// *storage.Archive implements it.
type StreamArchive interface {
	Put(entry storage.Entry, stream []byte) (storage.Entry, error)
	Get(id ksuid.KSUID) (storage.Entry, []byte, error)
	List() ([]storage.Entry, error)
	Delete(id ksuid.KSUID) error
}

var _ StreamArchive = (*storage.Archive)(nil)
