// Package testutil provides fake upstreams for tilawa tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mp3Header is an ID3v2 tag header; enough for content sniffing to classify
// the payload as audio/mpeg.
var mp3Header = []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// AudioServer is a configurable HTTP server that serves recitation files.
// Every path serves the same payload.
type AudioServer struct {
	Server *httptest.Server

	// Configuration
	FileSize       int64         // Size of each served file
	SupportsRanges bool          // Whether to honour Range requests
	ContentType    string        // Content-Type header value
	Latency        time.Duration // Artificial latency per request
	TruncateFirst  int64         // Cut the first full response after this many bytes (0 = off)
	NonAudio       bool          // Serve an HTML page instead of audio

	// Tracking
	RequestCount   atomic.Int64
	BytesServed    atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	FailedRequests atomic.Int64

	mu        sync.Mutex
	failPaths map[string]int // path suffix -> status
	truncated bool
	perPath   map[string]int

	data []byte
}

// AudioServerOption configures an AudioServer.
type AudioServerOption func(*AudioServer)

// WithFileSize sets the size of each served file.
func WithFileSize(size int64) AudioServerOption {
	return func(s *AudioServer) {
		s.FileSize = size
	}
}

// WithRangeSupport enables or disables Range request support.
func WithRangeSupport(enabled bool) AudioServerOption {
	return func(s *AudioServer) {
		s.SupportsRanges = enabled
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) AudioServerOption {
	return func(s *AudioServer) {
		s.Latency = d
	}
}

// WithTruncateFirst drops the connection after n bytes on the first full
// (non-range) request, leaving a partial file for resume tests.
func WithTruncateFirst(n int64) AudioServerOption {
	return func(s *AudioServer) {
		s.TruncateFirst = n
	}
}

// WithFailPath makes requests whose path ends with suffix answer with status.
func WithFailPath(suffix string, status int) AudioServerOption {
	return func(s *AudioServer) {
		s.failPaths[suffix] = status
	}
}

// WithNonAudioPayload serves HTML instead of audio bytes.
func WithNonAudioPayload() AudioServerOption {
	return func(s *AudioServer) {
		s.NonAudio = true
		s.ContentType = "text/html"
	}
}

// NewAudioServerT starts an AudioServer and skips the test if binding fails.
func NewAudioServerT(t *testing.T, opts ...AudioServerOption) *AudioServer {
	t.Helper()
	s := &AudioServer{
		FileSize:       64 * 1024,
		SupportsRanges: true,
		ContentType:    "audio/mpeg",
		failPaths:      make(map[string]int),
		perPath:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.data = make([]byte, s.FileSize)
	if s.NonAudio {
		copy(s.data, "<!DOCTYPE html><html><body>not found</body></html>")
	} else {
		copy(s.data, mp3Header)
		for i := len(mp3Header); i < len(s.data); i++ {
			s.data[i] = byte(i % 251)
		}
	}

	s.Server = NewHTTPServerT(t, http.HandlerFunc(s.handleRequest))
	return s
}

// URL returns the server's base URL.
func (s *AudioServer) URL() string {
	return s.Server.URL
}

// FileURL returns the URL for a named file on the server.
func (s *AudioServer) FileURL(name string) string {
	return s.Server.URL + "/" + strings.TrimPrefix(name, "/")
}

// Payload returns a copy of the bytes served for every file.
func (s *AudioServer) Payload() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// SetFailPath changes failure injection while the server is running. A zero
// status clears it.
func (s *AudioServer) SetFailPath(suffix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failPaths, suffix)
		return
	}
	s.failPaths[suffix] = status
}

// Requests returns how many requests hit path.
func (s *AudioServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perPath[path]
}

// Close shuts down the server.
func (s *AudioServer) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
}

func (s *AudioServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.RequestCount.Add(1)

	s.mu.Lock()
	s.perPath[r.URL.Path]++
	failStatus := 0
	for suffix, status := range s.failPaths {
		if strings.HasSuffix(r.URL.Path, suffix) {
			failStatus = status
			break
		}
	}
	s.mu.Unlock()

	if failStatus != 0 {
		s.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", failStatus)
		return
	}

	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}

	if r.Method == http.MethodHead {
		s.setCommonHeaders(w, 0, s.FileSize-1)
		w.WriteHeader(http.StatusOK)
		return
	}

	rangeHeader := r.Header.Get("Range")
	start := int64(0)
	end := s.FileSize - 1
	limit := int64(0)

	if rangeHeader != "" && s.SupportsRanges {
		s.RangeRequests.Add(1)

		var err error
		start, end, err = parseRange(rangeHeader, s.FileSize)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", s.FileSize))
			http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		s.setCommonHeaders(w, start, end)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, s.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		s.FullRequests.Add(1)

		s.mu.Lock()
		if s.TruncateFirst > 0 && !s.truncated {
			s.truncated = true
			limit = s.TruncateFirst
		}
		s.mu.Unlock()

		s.setCommonHeaders(w, 0, s.FileSize-1)
		w.WriteHeader(http.StatusOK)
	}

	length := end - start + 1
	written := int64(0)
	chunkSize := int64(8 * 1024)
	for written < length {
		if limit > 0 && written >= limit {
			// Short body against the declared Content-Length; the client
			// sees an unexpected EOF.
			s.FailedRequests.Add(1)
			return
		}

		n := chunkSize
		if remaining := length - written; remaining < n {
			n = remaining
		}
		if limit > 0 && written+n > limit {
			n = limit - written
		}

		wrote, err := w.Write(s.data[start+written : start+written+n])
		if err != nil {
			return
		}
		written += int64(wrote)
		s.BytesServed.Add(int64(wrote))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (s *AudioServer) setCommonHeaders(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Content-Type", s.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	if s.SupportsRanges {
		w.Header().Set("Accept-Ranges", "bytes")
	}
}

// parseRange parses "bytes=start-end", "bytes=start-" or "bytes=-suffix".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}

	parts := strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		end = fileSize - 1
		start, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start = fileSize - start
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if parts[1] == "" {
			end = fileSize - 1
		} else if end, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, 0, err
		}
	}

	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}
