// Package handler submits a single records request through the channel that
// matches its form type: a remote browser agent for web portals, or a
// download-and-fill flow for PDF forms.
package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/records-cli/internal/model"
)

// Handler submits one entry. Submit never returns an error: every failure is
// expressed as a result with a failure reason.
type Handler interface {
	Name() string
	Submit(ctx context.Context, entry model.FormEntry, extra map[string]string) model.SubmissionResult
}

// RequestText is the request wording sent to every municipality.
func RequestText(municipality string) string {
	return fmt.Sprintf("Could you please send me %s's municipal zoning code as of 1940? "+
		"If a zoning code didn't exist then, could you send me the first post 1940 adoption of the zoning code?",
		municipality)
}

// NewResult starts a result for entry with the given status.
func NewResult(entry model.FormEntry, status model.SubmissionStatus, started time.Time) model.SubmissionResult {
	return model.SubmissionResult{
		FormEntryID:   entry.UniqueID(),
		CensusID:      entry.CensusID,
		Municipality:  entry.Municipality,
		State:         entry.State,
		URL:           entry.URL,
		FormType:      string(entry.FormType),
		Status:        status,
		FailureReason: model.FailureNone,
		Confidence:    model.ConfidenceUnknown,
		StartedAt:     started,
	}
}

type batchKey struct{}

// WithBatchID tags ctx with the batch an entry is processed under.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchKey{}, id)
}

// BatchIDFrom returns the batch id set by WithBatchID, or "".
func BatchIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(batchKey{}).(string)
	return id
}

// fail marks r failed with reason and message and stamps its completion.
func fail(r model.SubmissionResult, reason model.FailureReason, msg string, now time.Time) model.SubmissionResult {
	r.Status = model.StatusFailed
	r.FailureReason = reason
	r.ErrorMessage = msg
	r.CompletedAt = now
	return r
}

// Registry maps form types to handlers. The first handler registered for a
// form type keeps it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.FormType]Handler
	order    []model.FormType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.FormType]Handler)}
}

// Register assigns h to each form type that has no handler yet.
func (r *Registry) Register(h Handler, types ...model.FormType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ft := range types {
		if _, ok := r.handlers[ft]; ok {
			continue
		}
		r.handlers[ft] = h
		r.order = append(r.order, ft)
	}
}

// For returns the handler for ft, falling back to the GENERIC_WEB handler.
// It returns nil only when neither is registered.
func (r *Registry) For(ft model.FormType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[ft]; ok {
		return h
	}
	return r.handlers[model.FormTypeGenericWeb]
}

// Types lists registered form types in registration order.
func (r *Registry) Types() []model.FormType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FormType, len(r.order))
	copy(out, r.order)
	return out
}
