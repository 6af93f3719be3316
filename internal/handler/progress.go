package handler

import (
	"io"
	"sync"
	"time"
)

// InMemoryUploadTracker tracks byte progress for in-flight uploads keyed
// by a client-supplied upload token, read by UploadProgress's SSE stream
// and written by the counting reader UploadDocument wraps around the
// multipart file part. Entries are evicted shortly after Finish so a
// long-polling client's last read still observes the terminal state.
type InMemoryUploadTracker struct {
	mu      sync.Mutex
	entries map[string]*progressEntry
}

type progressEntry struct {
	written int64
	total   int64
	done    bool
}

// NewInMemoryUploadTracker creates an empty tracker.
func NewInMemoryUploadTracker() *InMemoryUploadTracker {
	return &InMemoryUploadTracker{entries: make(map[string]*progressEntry)}
}

var _ UploadTracker = (*InMemoryUploadTracker)(nil)

// Register starts tracking uploadToken with the declared total size.
func (t *InMemoryUploadTracker) Register(uploadToken string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[uploadToken] = &progressEntry{total: total}
}

// Update records that written bytes have been read so far for uploadToken.
func (t *InMemoryUploadTracker) Update(uploadToken string, written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[uploadToken]; ok {
		e.written = written
	}
}

const evictAfter = 30 * time.Second

// Finish marks uploadToken complete; the entry is evicted after a short
// grace period so a poller that hasn't caught up yet still sees "done".
func (t *InMemoryUploadTracker) Finish(uploadToken string) {
	t.mu.Lock()
	if e, ok := t.entries[uploadToken]; ok {
		e.done = true
	}
	t.mu.Unlock()

	time.AfterFunc(evictAfter, func() {
		t.mu.Lock()
		delete(t.entries, uploadToken)
		t.mu.Unlock()
	})
}

// Progress implements UploadTracker.
func (t *InMemoryUploadTracker) Progress(uploadToken string) (written, total int64, done, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, exists := t.entries[uploadToken]
	if !exists {
		return 0, 0, false, false
	}
	return e.written, e.total, e.done, true
}

// countingReader wraps a multipart file part, reporting cumulative bytes
// read into tracker under uploadToken as the orchestrator consumes it.
type countingReader struct {
	r           io.Reader
	tracker     *InMemoryUploadTracker
	uploadToken string
	read        int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.tracker.Update(c.uploadToken, c.read)
	}
	return n, err
}
