package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/colstream/pkg/storage"
)

const csvBody = "id,city\n1,oslo\n2,rome\n3,oslo\n"

// setupTestServer creates a server backed by an archive in a temp dir
func setupTestServer(t *testing.T, config ServerConfig) (*Server, http.Handler) {
	t.Helper()
	archive, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	server := NewServer(archive, config, prometheus.NewRegistry(), nil)
	return server, server.Router()
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	resp := APIResponse{Data: data}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func readRows(t *testing.T, stream []byte) ([]int64, []string) {
	t.Helper()
	rdr, err := ipc.NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	defer rdr.Release()

	var ids []int64
	var cities []string
	for rdr.Next() {
		rec := rdr.Record()
		ids = append(ids, rec.Column(0).(*array.Int64).Int64Values()...)
		col := rec.Column(1).(*array.Dictionary)
		dict := col.Dictionary().(*array.String)
		for i := 0; i < col.Len(); i++ {
			cities = append(cities, dict.Value(col.GetValueIndex(i)))
		}
	}
	require.NoError(t, rdr.Err())
	return ids, cities
}

func TestHealth(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})
	w := do(t, h, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var data map[string]interface{}
	resp := decodeResponse(t, w, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, true, data["archive"])
}

func TestEncode_Stream(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})
	w := do(t, h, "POST", "/api/v1/encode?batch_size=2&type=id:int64&dict=city", strings.NewReader(csvBody))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, StreamContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "3", w.Header().Get(headerRows))
	assert.Equal(t, "2", w.Header().Get(headerBatches))
	assert.Zero(t, w.Body.Len()%8)

	ids, cities := readRows(t, w.Body.Bytes())
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, []string{"oslo", "rome", "oslo"}, cities)
}

func TestEncode_ConfiguredOptions(t *testing.T) {
	config := ServerConfig{}
	config.Encode.Types = map[string]string{"id": "int64"}
	config.Encode.Dictionary = []string{"city"}
	server, h := setupTestServer(t, config)

	w := do(t, h, "POST", "/api/v1/encode?delimiter=;", strings.NewReader(strings.ReplaceAll(csvBody, ",", ";")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ids, _ := readRows(t, w.Body.Bytes())
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// Query parameters must not leak into the configured options
	w = do(t, h, "POST", "/api/v1/encode?type=extra:int8", strings.NewReader(csvBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]string{"id": "int64"}, server.config.Encode.Types)
}

func TestEncode_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantErr    string
	}{
		{name: "empty body", target: "/api/v1/encode", body: "", wantStatus: http.StatusBadRequest, wantErr: "no header line"},
		{name: "bad batch size", target: "/api/v1/encode?batch_size=0", body: csvBody, wantStatus: http.StatusBadRequest, wantErr: "batch_size"},
		{name: "bad delimiter", target: "/api/v1/encode?delimiter=ab", body: csvBody, wantStatus: http.StatusBadRequest, wantErr: "single character"},
		{name: "malformed type pair", target: "/api/v1/encode?type=id", body: csvBody, wantStatus: http.StatusBadRequest, wantErr: "column:type"},
		{name: "unknown type", target: "/api/v1/encode?type=id:decimal", body: csvBody, wantStatus: http.StatusBadRequest, wantErr: "unknown column type"},
		{name: "bad value", target: "/api/v1/encode?type=city:int32", body: csvBody, wantStatus: http.StatusBadRequest},
		{name: "too large", target: "/api/v1/encode", body: strings.Repeat("x", 200) + "\n1\n", wantStatus: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, h := setupTestServer(t, ServerConfig{MaxUploadBytes: 128})
			w := do(t, h, "POST", tc.target, strings.NewReader(tc.body))
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			resp := decodeResponse(t, w, nil)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tc.wantErr)
		})
	}
}

func TestEncodeStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, encodeStatus(io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusRequestEntityTooLarge, encodeStatus(&http.MaxBytesError{Limit: 1}))
}

func TestStreams_Lifecycle(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})

	w := do(t, h, "POST", "/api/v1/encode?archive=true&name=cities&type=id:int64&dict=city", strings.NewReader(csvBody))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created StreamInfo
	decodeResponse(t, w, &created)
	assert.Equal(t, "cities", created.Name)
	assert.Equal(t, int64(3), created.Rows)
	assert.Equal(t, 1, created.Batches)
	assert.Equal(t, created.ID, w.Header().Get(headerStreamID))

	w = do(t, h, "GET", "/api/v1/streams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []StreamInfo
	decodeResponse(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	w = do(t, h, "GET", "/api/v1/streams/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StreamContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, created.Bytes, int64(w.Body.Len()))
	ids, cities := readRows(t, w.Body.Bytes())
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, []string{"oslo", "rome", "oslo"}, cities)

	w = do(t, h, "GET", "/api/v1/streams/"+created.ID+"/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info StreamInfo
	decodeResponse(t, w, &info)
	assert.Equal(t, created, info)

	w = do(t, h, "DELETE", "/api/v1/streams/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "GET", "/api/v1/streams/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, "DELETE", "/api/v1/streams/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreams_BadID(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})
	for _, method := range []string{"GET", "DELETE"} {
		w := do(t, h, method, "/api/v1/streams/not-a-ksuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, method)
	}
}

func TestStreams_NotFoundCountsAsSuccess(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})
	target := "/api/v1/streams/" + ksuid.New().String()

	w := do(t, h, "GET", target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, "DELETE", target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := do(t, h, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, body, `colstream_archive_operations_total{operation="get",status="success"} 1`)
	assert.Contains(t, body, `colstream_archive_operations_total{operation="delete",status="success"} 1`)
	assert.NotContains(t, body, `colstream_archive_operations_total{operation="delete",status="error"}`)
}

func TestStreams_ArchiveDisabled(t *testing.T) {
	server := NewServer(nil, ServerConfig{}, prometheus.NewRegistry(), nil)
	h := server.Router()

	w := do(t, h, "GET", "/api/v1/streams", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = do(t, h, "POST", "/api/v1/encode?archive=true", strings.NewReader(csvBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = do(t, h, "POST", "/api/v1/encode", strings.NewReader(csvBody))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name           string
		requestHeader  string
		expectedStatus int
	}{
		{name: "valid API key", requestHeader: "test-key", expectedStatus: http.StatusOK},
		{name: "missing API key header", requestHeader: "", expectedStatus: http.StatusUnauthorized},
		{name: "invalid API key", requestHeader: "wrong-key", expectedStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := setupTestServer(t, ServerConfig{APIKey: "test-key"})
			var headers []string
			if tt.requestHeader != "" {
				headers = []string{"X-API-Key", tt.requestHeader}
			}
			w := do(t, h, "GET", "/api/v1/health", nil, headers...)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	t.Run("metrics stay open", func(t *testing.T) {
		_, h := setupTestServer(t, ServerConfig{APIKey: "test-key"})
		w := do(t, h, "GET", "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{APIKey: "k"})
	do(t, h, "POST", "/api/v1/encode?archive=true", strings.NewReader(csvBody), "X-API-Key", "k")
	do(t, h, "GET", "/api/v1/health", nil, "X-API-Key", "bad")

	w := do(t, h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `colstream_http_requests_total{endpoint="/api/v1/encode",method="POST",status_code="201"} 1`)
	assert.Contains(t, body, `colstream_messages_total{kind="schema"} 1`)
	assert.Contains(t, body, `colstream_archive_operations_total{operation="put",status="success"} 1`)
	assert.Contains(t, body, `colstream_auth_requests_total{status="error"} 1`)
	assert.Contains(t, body, `colstream_auth_requests_total{status="success"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	_, h := setupTestServer(t, ServerConfig{})
	w := do(t, h, "OPTIONS", "/api/v1/encode", nil,
		"Origin", "http://example.com",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_Shutdown(t *testing.T) {
	server, _ := setupTestServer(t, ServerConfig{ShutdownGrace: time.Second})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, l) }()

	url := "http://" + l.Addr().String() + "/api/v1/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestAddr(t *testing.T) {
	server := NewServer(nil, ServerConfig{Bind: "127.0.0.1", Port: 9200}, prometheus.NewRegistry(), nil)
	assert.Equal(t, "127.0.0.1:9200", server.Addr())
}

func TestEncode_ConcurrencyLimit(t *testing.T) {
	server, h := setupTestServer(t, ServerConfig{MaxConcurrent: 1})
	require.True(t, server.encodes.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("POST", "/api/v1/encode", strings.NewReader(csvBody)).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	server.encodes.Release(1)
	w = do(t, h, "POST", "/api/v1/encode", strings.NewReader(csvBody))
	assert.Equal(t, http.StatusOK, w.Code)
}
