package syncqueue

import (
	"context"
	"sync"

	"github.com/asafgershon/esim-go-sub012/app/models"
)

// Result carries the counters a handler produced for one job.
type Result struct {
	Processed int
	Added     int
	Updated   int
}

// HandlerFunc processes one dequeued job. Returning an error marks the
// job failed and hands it to the retry policy.
type HandlerFunc func(ctx context.Context, job *Job) (*Result, error)

// Registry maps job types to handlers. Adding a provider or job type
// means registering a handler, not editing a dispatch switch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.SyncJobType]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.SyncJobType]HandlerFunc)}
}

// Register installs or replaces the handler for a job type.
func (r *Registry) Register(jobType models.SyncJobType, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Resolve returns the handler for a job type, or false when none is
// registered.
func (r *Registry) Resolve(jobType models.SyncJobType) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[jobType]
	return handler, ok
}
