// Package healthz reports whether the reminder loop is still making progress.
package healthz

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

type Handler struct {
	mu       sync.Mutex
	last     time.Time
	lastErr  error
	started  time.Time
	maxStale time.Duration
	now      func() time.Time
}

// New returns a handler that turns unhealthy once no pass has completed for
// maxStale.  Before the first pass, the handler's creation time counts as the
// last pass.
func New(maxStale time.Duration) *Handler {
	h := &Handler{
		maxStale: maxStale,
		now:      time.Now,
	}
	h.started = h.now()
	return h
}

// MarkTick records a completed pass.  Its signature matches
// poller.WithTickObserver.
func (h *Handler) MarkTick(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = h.now()
	h.lastErr = err
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	last, lastErr := h.last, h.lastErr
	h.mu.Unlock()

	ref := last
	if ref.IsZero() {
		ref = h.started
	}

	if age := h.now().Sub(ref); age > h.maxStale {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "503 Service Unavailable: no completed pass for %v\n", age.Truncate(time.Second))
		return
	}

	// A failing pass still means the loop is alive; report it without
	// failing the check.
	if lastErr != nil {
		fmt.Fprintf(w, "200 OK (last pass failed: %v)\n", lastErr)
		return
	}
	w.Write([]byte("200 OK"))
}
