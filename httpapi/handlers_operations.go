package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-integrations/core"
)

func (h *Handler) handleListOperations(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListOperations(r.Context(), UserFromContext(r.Context()), r.URL.Query().Get("type"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]operationResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toOperationResponse(record))
	}
	respondJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (h *Handler) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	var body createOperationRequest
	if err := h.decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	record, err := h.service.CreateOperation(r.Context(), core.CreateOperationRequest{
		ID:       body.ID,
		UserID:   UserFromContext(r.Context()),
		Type:     body.Type,
		Metadata: body.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusCreated
	if body.Dispatch {
		if err := h.service.DispatchOperation(r.Context(), record.ID, body.Payload); err != nil {
			respondError(w, err)
			return
		}
		status = http.StatusAccepted
	}
	respondJSON(w, status, toOperationResponse(record))
}

func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedOperation(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toOperationResponse(record))
}

func (h *Handler) handleGetOperationStatus(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedOperation(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		ID:     record.ID,
		Status: string(record.Status),
		Final:  record.Status.Terminal(),
	})
}

func (h *Handler) handleDispatchOperation(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedOperation(w, r)
	if !ok {
		return
	}
	var body dispatchRequest
	if err := h.decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if err := h.service.DispatchOperation(r.Context(), record.ID, body.Payload); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toOperationResponse(record))
}

func (h *Handler) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RequestCancellation(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cancellationResponse{
		CancellationID: result.Cancellation.ID,
		Operation:      toOperationResponse(result.Operation),
	})
}

func (h *Handler) handleTriggerAutomation(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if err := h.decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	record, err := h.service.TriggerAutomation(r.Context(), core.TriggerAutomationRequest{
		UserID:       UserFromContext(r.Context()),
		AutomationID: chi.URLParam(r, "id"),
		Payload:      body.Payload,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toOperationResponse(record))
}

// ownedOperation loads the path operation and answers 404 when it is missing
// or belongs to someone else.
func (h *Handler) ownedOperation(w http.ResponseWriter, r *http.Request) (core.OperationRecord, bool) {
	id := chi.URLParam(r, "id")
	record, found, err := h.service.GetOperation(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return core.OperationRecord{}, false
	}
	if !found || record.UserID != UserFromContext(r.Context()) {
		respondError(w, fmt.Errorf("%w: id %q", core.ErrOperationNotFound, id))
		return core.OperationRecord{}, false
	}
	return record, true
}
