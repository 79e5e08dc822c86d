package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/joblock"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/pipeline"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/selection"
)

// SelectionReader is the read side of the selection store.
type SelectionReader interface {
	Search(ctx context.Context, q selection.Query) (selection.Result, error)
}

// StageReader reads the qualification stage breakdown parked by the
// pipeline.
type StageReader interface {
	Get(ctx context.Context, et cachestore.EntityType, id string, dst any) (cachestore.Hit, error)
}

// JobTrigger fires a pipeline job and acks immediately.
type JobTrigger interface {
	Trigger(job string, windowHours int, triggeredBy string, force bool) (pipeline.TriggerResult, error)
}

// LockLister exposes the job lock table.
type LockLister interface {
	List(ctx context.Context) ([]joblock.Lock, error)
}

// API serves the selection query, ticket generation and job trigger
// endpoints.
type API struct {
	Log        *zap.Logger
	Selections SelectionReader
	Stages     StageReader
	Jobs       JobTrigger
	Locks      LockLister

	// InternalKey authenticates job triggers; empty disables them.
	InternalKey string
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/selections", a.getSelections)
	r.Post("/v1/tickets/optimize", a.optimizeTicket)
	r.Post("/v1/tickets/shuffle", a.shuffleTicket)
	r.Post("/v1/jobs/{job}/run", a.runJob)
	r.Get("/v1/jobs/locks", a.listLocks)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: reason})
}
