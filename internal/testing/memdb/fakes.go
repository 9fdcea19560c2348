package memdb

import (
	"context"
	"sync"

	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Recorder is a shared.Notifier that keeps every notification.
type Recorder struct {
	mu   sync.Mutex
	sent []shared.Notification
}

func (r *Recorder) Notify(_ context.Context, n shared.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns the notifications received so far.
func (r *Recorder) Sent() []shared.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Notification(nil), r.sent...)
}

// ToRole returns the notifications addressed to role.
func (r *Recorder) ToRole(role string) []shared.Notification {
	var out []shared.Notification
	for _, n := range r.Sent() {
		if n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

// Renderer records documents instead of producing a real PDF.
type Renderer struct {
	mu       sync.Mutex
	Rendered []documents.Document
	Err      error
}

func (r *Renderer) RenderPDF(_ context.Context, _ documents.Template, doc documents.Document) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	r.Rendered = append(r.Rendered, doc)
	return []byte("%PDF-1.4 " + doc.Number), nil
}
