package notifier

import (
	"context"
	"sync"
)

// Recorder hält alle Anträge im Speicher, für Tests und Probeläufe.
type Recorder struct {
	mu       sync.Mutex
	requests []PublishRequest
	Err      error
}

// Notify implementiert Notifier.
func (r *Recorder) Notify(_ context.Context, req PublishRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.Err
}

// Requests gibt eine Kopie der aufgezeichneten Anträge zurück.
func (r *Recorder) Requests() []PublishRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishRequest(nil), r.requests...)
}
