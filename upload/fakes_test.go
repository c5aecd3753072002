package upload

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/saphetor/vc-file-upload/internal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLogger records every log call. All methods are allowed by newMockLogger,
// tests assert on the calls they care about.
type MockLogger struct {
	mock.Mock
}

func newMockLogger() *MockLogger {
	logger := new(MockLogger)
	for _, method := range []string{"Infof", "Warnf", "Printf", "Donef", "Debugf", "Errorf",
		"TInfof", "TWarnf", "TPrintf", "TDonef", "TDebugf", "TErrorf"} {
		logger.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}
	logger.On("Println").Return().Maybe()
	logger.On("EnableDebugLog", mock.Anything).Return().Maybe()
	return logger
}

func (m *MockLogger) Infof(format string, v ...interface{})  { m.Called(format, v) }
func (m *MockLogger) Warnf(format string, v ...interface{})  { m.Called(format, v) }
func (m *MockLogger) Printf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) Donef(format string, v ...interface{})  { m.Called(format, v) }
func (m *MockLogger) Debugf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) Errorf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) TInfof(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) TWarnf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) TPrintf(format string, v ...interface{}) {
	m.Called(format, v)
}
func (m *MockLogger) TDonef(format string, v ...interface{})  { m.Called(format, v) }
func (m *MockLogger) TDebugf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) TErrorf(format string, v ...interface{}) { m.Called(format, v) }
func (m *MockLogger) Println()                                { m.Called() }
func (m *MockLogger) EnableDebugLog(enable bool)              { m.Called(enable) }

// fakeOS fails Open for the configured paths and delegates everything else.
type fakeOS struct {
	internal.RealOS
	failOpen map[string]bool
}

func (f fakeOS) Open(name string) (*os.File, error) {
	if f.failOpen[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.RealOS.Open(name)
}

type chunkCall struct {
	UploadID     string
	ContentRange string
	FileName     string
}

// fakeService implements the sample-file endpoints in memory.
type fakeService struct {
	t *testing.T

	mu            sync.Mutex
	requests      int
	singleUploads map[string][]byte
	chunks        []chunkCall
	uploads       map[string][]byte
	completions   []url.Values
	registrations []map[string]string

	// rangeMismatchAt makes the first chunk starting at this offset fail with 416 and
	// the given server offset.
	rangeMismatchAt *uint64
	resyncOffset    uint64
	failChunks      bool
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	service := &fakeService{
		t:             t,
		singleUploads: map[string][]byte{},
		uploads:       map[string][]byte{},
	}
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)
	return service, server
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/api/v1/sample-files/upload/":
		s.singleUpload(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/sample-files/filestore-upload/add/":
		s.chunk(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/sample-files/filestore-upload/complete/":
		s.complete(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sample-files/":
		s.register(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeService) singleUpload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition"))
	require.NoError(s.t, err)
	body, err := io.ReadAll(r.Body)
	require.NoError(s.t, err)

	name := params["filename"]
	s.singleUploads[name] = body
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "size": len(body)})
}

func (s *fakeService) chunk(w http.ResponseWriter, r *http.Request) {
	var start, end, total uint64
	contentRange := r.Header.Get("Content-Range")
	_, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total)
	require.NoError(s.t, err)

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(s.t, err)
	part, err := multipart.NewReader(r.Body, params["boundary"]).NextPart()
	require.NoError(s.t, err)
	data, err := io.ReadAll(part)
	require.NoError(s.t, err)

	uploadID := r.URL.Query().Get("upload_id")
	s.chunks = append(s.chunks, chunkCall{UploadID: uploadID, ContentRange: contentRange, FileName: part.FileName()})

	if s.failChunks {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		return
	}
	if s.rangeMismatchAt != nil && *s.rangeMismatchAt == start {
		s.rangeMismatchAt = nil
		writeJSON(w, http.StatusRequestedRangeNotSatisfiable, map[string]uint64{"offset": s.resyncOffset})
		return
	}

	if uploadID == "" {
		uploadID = fmt.Sprintf("upload-%d", len(s.uploads)+1)
		s.uploads[uploadID] = make([]byte, total)
	}
	copy(s.uploads[uploadID][start:end], data)
	writeJSON(w, http.StatusOK, map[string]string{"upload_id": uploadID})
}

func (s *fakeService) complete(w http.ResponseWriter, r *http.Request) {
	require.NoError(s.t, r.ParseForm())
	s.completions = append(s.completions, r.PostForm)

	uploadID := r.PostForm.Get("upload_id")
	sum := md5.Sum(s.uploads[uploadID])
	if hex.EncodeToString(sum[:]) != r.PostForm.Get("md5") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "md5 mismatch"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"upload_id": uploadID, "size": len(s.uploads[uploadID])})
}

func (s *fakeService) register(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
	s.registrations = append(s.registrations, body)

	if strings.Contains(body["file_url"], "missing") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "cannot fetch"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"name": body["sample_file_name"]})
}

func (s *fakeService) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := bytes.Repeat([]byte("ACGT"), size/4+1)[:size]
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}
