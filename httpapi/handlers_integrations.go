package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-integrations/core"
)

func (h *Handler) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListForUser(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]integrationResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toIntegrationResponse(record))
	}
	respondJSON(w, http.StatusOK, map[string]any{"integrations": out})
}

func (h *Handler) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetIntegration(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIntegrationResponse(record))
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Disconnect(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReconnect(w http.ResponseWriter, r *http.Request) {
	var body reconnectRequest
	if err := h.decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	result, err := h.service.Reconnect(r.Context(), core.ReconnectRequest{
		UserID:        UserFromContext(r.Context()),
		IntegrationID: chi.URLParam(r, "id"),
		UsePKCE:       body.UsePKCE,
		RedirectURI:   body.RedirectURI,
		Scopes:        body.Scopes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAuthorizeResponse(result))
}

func (h *Handler) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var body configurationRequest
	if err := h.decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	record, err := h.service.UpdateConfiguration(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), body.Configuration)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIntegrationResponse(record))
}
