package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/colstream/pkg/codec"
	"github.com/ssargent/colstream/pkg/ingest"
	"github.com/ssargent/colstream/pkg/storage"
)

const (
	headerStreamID = "X-Colstream-Id"
	headerRows     = "X-Colstream-Rows"
	headerBatches  = "X-Colstream-Batches"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]interface{}{
		"status":  "healthy",
		"archive": s.archive != nil,
	}, http.StatusOK)
}

// handleEncode reads CSV from the body. Query parameters override the
// configured encode options:
//
//	batch_size=N  delimiter=C  type=col:int64 (repeatable)  dict=col (repeatable)
//	archive=true  name=label
//
// Without archive the stream is the response body; with it the stream is
// stored and its entry returned.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	opts, err := s.encodeOptions(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))
	if archive && s.archive == nil {
		sendError(w, "archive is not enabled", http.StatusServiceUnavailable)
		return
	}

	if s.encodes != nil {
		if err := s.encodes.Acquire(r.Context(), 1); err != nil {
			sendError(w, "too many concurrent encodes", http.StatusServiceUnavailable)
			return
		}
		defer s.encodes.Release(1)
	}

	body := r.Body
	if s.config.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}

	var buf bytes.Buffer
	sum, err := ingest.Encode(&buf, body, opts,
		codec.WithObserver(s.encoder),
		codec.WithLogger(s.logger),
	)
	if err != nil {
		s.logger.Warn("encode failed", "error", err, "rows", sum.Rows)
		sendError(w, err.Error(), encodeStatus(err))
		return
	}

	if !archive {
		writeStream(w, buf.Bytes(), sum.Rows, sum.Batches)
		return
	}

	start := time.Now()
	entry, err := s.archive.Put(storage.Entry{
		Name:    r.URL.Query().Get("name"),
		Rows:    sum.Rows,
		Batches: sum.Batches,
	}, buf.Bytes())
	s.encoder.RecordArchiveOperation("put", err == nil, time.Since(start))
	if err != nil {
		sendError(w, fmt.Sprintf("archive stream: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set(headerStreamID, entry.ID.String())
	sendSuccess(w, streamInfo(entry), http.StatusCreated)
}

func (s *Server) encodeOptions(r *http.Request) (ingest.Options, error) {
	q := r.URL.Query()
	opts := s.config.Encode
	opts.Types = make(map[string]string, len(s.config.Encode.Types))
	for k, v := range s.config.Encode.Types {
		opts.Types[k] = v
	}
	opts.Dictionary = append([]string(nil), s.config.Encode.Dictionary...)

	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("batch_size must be a positive integer, got %q", v)
		}
		opts.BatchSize = n
	}
	if v := q.Get("delimiter"); v != "" {
		if utf8.RuneCountInString(v) != 1 {
			return opts, fmt.Errorf("delimiter must be a single character, got %q", v)
		}
		opts.Comma, _ = utf8.DecodeRuneInString(v)
	}
	for _, v := range q["type"] {
		name, typ, ok := strings.Cut(v, ":")
		if !ok || name == "" || typ == "" {
			return opts, fmt.Errorf("type must look like column:type, got %q", v)
		}
		opts.Types[name] = typ
	}
	opts.Dictionary = append(opts.Dictionary, q["dict"]...)
	return opts, nil
}

// encodeStatus maps an encode error to a status code. Anything that is not
// an encoder failure came from parsing the upload.
func encodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, codec.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, codec.ErrEncoding), errors.Is(err, codec.ErrWrite), errors.Is(err, codec.ErrAlignment):
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func writeStream(w http.ResponseWriter, stream []byte, rows int64, batches int) {
	w.Header().Set("Content-Type", StreamContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(stream)))
	w.Header().Set(headerRows, strconv.FormatInt(rows, 10))
	w.Header().Set(headerBatches, strconv.Itoa(batches))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stream)
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		sendError(w, "archive is not enabled", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()
	entries, err := s.archive.List()
	s.encoder.RecordArchiveOperation("list", err == nil, time.Since(start))
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	infos := make([]StreamInfo, len(entries))
	for i, e := range entries {
		infos[i] = streamInfo(e)
	}
	sendSuccess(w, infos, http.StatusOK)
}

// archiveOK reports whether an archive call worked; a missing stream is an
// answer, not a failure
func archiveOK(err error) bool {
	return err == nil || errors.Is(err, storage.ErrNotFound)
}

// lookup resolves the {id} parameter and fetches the stream, writing the
// error response itself when it fails.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (storage.Entry, []byte, bool) {
	if s.archive == nil {
		sendError(w, "archive is not enabled", http.StatusServiceUnavailable)
		return storage.Entry{}, nil, false
	}
	id, ok := s.streamID(w, r)
	if !ok {
		return storage.Entry{}, nil, false
	}
	start := time.Now()
	entry, stream, err := s.archive.Get(id)
	s.encoder.RecordArchiveOperation("get", archiveOK(err), time.Since(start))
	if errors.Is(err, storage.ErrNotFound) {
		sendError(w, "stream not found", http.StatusNotFound)
		return storage.Entry{}, nil, false
	}
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return storage.Entry{}, nil, false
	}
	return entry, stream, true
}

func (s *Server) streamID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	id, err := storage.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	entry, stream, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set(headerStreamID, entry.ID.String())
	writeStream(w, stream, entry.Rows, entry.Batches)
}

func (s *Server) handleStreamInfo(w http.ResponseWriter, r *http.Request) {
	entry, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sendSuccess(w, streamInfo(entry), http.StatusOK)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		sendError(w, "archive is not enabled", http.StatusServiceUnavailable)
		return
	}
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}
	start := time.Now()
	err := s.archive.Delete(id)
	s.encoder.RecordArchiveOperation("delete", archiveOK(err), time.Since(start))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		sendError(w, "stream not found", http.StatusNotFound)
	case err != nil:
		sendError(w, err.Error(), http.StatusInternalServerError)
	default:
		sendSuccess(w, map[string]string{"deleted": id.String()}, http.StatusOK)
	}
}
