package flow

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// runTimeout bounds a single dispatched flow run end to end.
const runTimeout = 10 * time.Minute

// StatusNotifier is what the handler needs from the notifier.
type StatusNotifier interface {
	Notify(ex Execution)
	RequestCancel(ctx context.Context, flowID string, executionID int64) error
}

type Handler struct {
	store    ExecutionStore
	runner   Runner
	notifier StatusNotifier
	log      zerolog.Logger
}

func NewHandler(store ExecutionStore, runner Runner, notifier StatusNotifier, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		runner:   runner,
		notifier: notifier,
		log:      log,
	}
}

type executeBody struct {
	Nodes json.RawMessage `json:"nodes"`
	Edges json.RawMessage `json:"edges"`
}

type executeResponse struct {
	ExecutionID int64 `json:"executionId"`
}

// Execute starts a flow run: a running row is created and announced before
// the flow is dispatched to the runner in the background.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")

	var body executeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ex, err := h.store.CreateExecution(r.Context(), flowID)
	if err != nil {
		h.log.Error().Err(err).Str("flow_id", flowID).Msg("creating execution failed")
		http.Error(w, "failed to start execution", http.StatusInternalServerError)
		return
	}
	h.notifier.Notify(*ex)

	go h.runFlow(*ex, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(executeResponse{ExecutionID: ex.ID})
}

// runFlow dispatches to the runner and records the outcome. Detached from
// the request context: the run outlives the HTTP exchange that started it.
func (h *Handler) runFlow(ex Execution, body executeBody) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := h.runner.Execute(ctx, ex.FlowID, ex.ID, body.Nodes, body.Edges)

	status := StatusCompleted
	var output, errMsg *string
	switch {
	case err != nil:
		status = StatusError
		s := err.Error()
		errMsg = &s
	case result.Status != string(StatusCompleted):
		status = StatusError
		if result.Error != "" {
			errMsg = &result.Error
		}
	default:
		if len(result.Output) > 0 {
			s := string(result.Output)
			output = &s
		}
	}

	updated, updateErr := h.store.UpdateExecution(ctx, ex.ID, status, output, errMsg)
	if updateErr != nil {
		h.log.Error().Err(updateErr).Int64("execution_id", ex.ID).Msg("recording execution result failed")
		// Clients still learn the outcome even when the row update failed.
		ex.Status = status
		ex.Output = output
		ex.Error = errMsg
		h.notifier.Notify(ex)
		return
	}
	h.notifier.Notify(*updated)
}

// Cancel forwards a cancellation to the runner and marks the row errored
// with a fixed reason. Best effort on both sides.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "id")
	executionID, err := strconv.ParseInt(chi.URLParam(r, "executionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid execution id", http.StatusBadRequest)
		return
	}

	if err := h.notifier.RequestCancel(r.Context(), flowID, executionID); err != nil {
		// Advisory: the local record is still closed out.
		h.log.Warn().Err(err).Int64("execution_id", executionID).Msg("runner rejected cancel")
	}

	reason := CancelReason
	updated, err := h.store.UpdateExecution(r.Context(), executionID, StatusError, nil, &reason)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("execution_id", executionID).Msg("marking execution canceled failed")
		http.Error(w, "failed to cancel execution", http.StatusInternalServerError)
		return
	}
	h.notifier.Notify(*updated)

	w.WriteHeader(http.StatusAccepted)
}

// PushStatus is the runner's out-of-band status channel. The record is
// persisted and then relayed verbatim.
func (h *Handler) PushStatus(w http.ResponseWriter, r *http.Request) {
	var ex Execution
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !ex.Status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	updated, err := h.store.UpdateExecution(r.Context(), ex.ID, ex.Status, ex.Output, ex.Error)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("execution_id", ex.ID).Msg("recording pushed status failed")
		http.Error(w, "failed to record status", http.StatusInternalServerError)
		return
	}

	h.notifier.Notify(*updated)
	w.WriteHeader(http.StatusNoContent)
}
