package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned for an id that is not in the archive
var ErrNotFound = errors.New("stream not found")

// Key layout: the entry and the stream bytes share the KSUID suffix, so a
// prefix scan over entries lists streams in creation order.
var (
	entryPrefix  = []byte("e/")
	streamPrefix = []byte("s/")
)

// Entry describes one archived stream
type Entry struct {
	ID        ksuid.KSUID `msgpack:"-"`
	Name      string      `msgpack:"name"`
	Rows      int64       `msgpack:"rows"`
	Batches   int         `msgpack:"batches"`
	Bytes     int64       `msgpack:"bytes"`
	Stored    int64       `msgpack:"stored"` // compressed size on disk
	CreatedAt time.Time   `msgpack:"created_at"`
}

// Archive stores zstd-compressed streams in pebble, keyed by KSUID.
// It is safe for concurrent use.
type Archive struct {
	db  *pebble.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates an archive in dir
func Open(dir string) (*Archive, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Archive{db: db, enc: enc, dec: dec}, nil
}

// ParseID parses the string form of an archive id
func ParseID(s string) (ksuid.KSUID, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("invalid stream id %q: %w", s, err)
	}
	return id, nil
}

func key(prefix []byte, id ksuid.KSUID) []byte {
	return append(append([]byte{}, prefix...), id.Bytes()...)
}

// Put stores a complete stream and its description. ID, Bytes and
// CreatedAt are filled in and the stored entry is returned.
func (a *Archive) Put(entry Entry, stream []byte) (Entry, error) {
	entry.ID = ksuid.New()
	entry.Bytes = int64(len(stream))
	entry.CreatedAt = entry.ID.Time().UTC()
	packed := a.enc.EncodeAll(stream, make([]byte, 0, len(stream)/2))
	entry.Stored = int64(len(packed))

	meta, err := msgpack.Marshal(&entry)
	if err != nil {
		return Entry{}, fmt.Errorf("encode entry: %w", err)
	}

	b := a.db.NewBatch()
	defer b.Close()
	if err := b.Set(key(streamPrefix, entry.ID), packed, nil); err != nil {
		return Entry{}, err
	}
	if err := b.Set(key(entryPrefix, entry.ID), meta, nil); err != nil {
		return Entry{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return Entry{}, fmt.Errorf("commit stream %s: %w", entry.ID, err)
	}
	return entry, nil
}

// Entry returns the description of a stream
func (a *Archive) Entry(id ksuid.KSUID) (Entry, error) {
	data, err := a.get(key(entryPrefix, id))
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(id, data)
}

// Get returns a stream's description and bytes
func (a *Archive) Get(id ksuid.KSUID) (Entry, []byte, error) {
	entry, err := a.Entry(id)
	if err != nil {
		return Entry{}, nil, err
	}
	packed, err := a.get(key(streamPrefix, id))
	if err != nil {
		return Entry{}, nil, err
	}
	stream, err := a.dec.DecodeAll(packed, make([]byte, 0, entry.Bytes))
	if err != nil {
		return Entry{}, nil, fmt.Errorf("decompress stream %s: %w", id, err)
	}
	return entry, stream, nil
}

// get copies the value out; pebble's slice is only valid until the closer runs
func (a *Archive) get(k []byte) ([]byte, error) {
	data, closer, err := a.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

// List returns every entry, oldest first
func (a *Archive) List() ([]Entry, error) {
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: []byte("e0"), // '0' follows '/'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(iter.Key()[len(entryPrefix):])
		if err != nil {
			return nil, fmt.Errorf("corrupt archive key %x: %w", iter.Key(), err)
		}
		entry, err := decodeEntry(id, iter.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}

// Delete removes a stream
func (a *Archive) Delete(id ksuid.KSUID) error {
	if _, err := a.get(key(entryPrefix, id)); err != nil {
		return err
	}
	b := a.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key(entryPrefix, id), nil); err != nil {
		return err
	}
	if err := b.Delete(key(streamPrefix, id), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Close closes the underlying database
func (a *Archive) Close() error {
	a.dec.Close()
	if err := a.enc.Close(); err != nil {
		a.db.Close()
		return err
	}
	return a.db.Close()
}

func decodeEntry(id ksuid.KSUID, data []byte) (Entry, error) {
	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	entry.ID = id
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}
