package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-integrations/core"
)

// handleAuthorize starts a connection. ?redirect=true answers with a 302 to
// the provider instead of the JSON envelope.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := core.ConnectRequest{
		UserID:      UserFromContext(r.Context()),
		ServiceName: chi.URLParam(r, "service"),
		RedirectURI: strings.TrimSpace(query.Get("redirect_uri")),
		Scopes:      splitScopes(query),
	}
	if raw := query.Get("pkce"); raw != "" {
		usePKCE := raw == "true" || raw == "1"
		req.UsePKCE = &usePKCE
	}
	result, err := h.service.Connect(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	if query.Get("redirect") == "true" {
		http.Redirect(w, r, result.Authorization.URL, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, toAuthorizeResponse(result))
}

// handleCallback is the provider redirect target. The owner of the flow is
// resolved from the state value; a caller identity header, when present,
// must match it.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	record, err := h.service.CompleteConnect(r.Context(), core.ExchangeRequest{
		UserID:           userID,
		ServiceName:      chi.URLParam(r, "service"),
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIntegrationResponse(record))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.RefreshIntegration(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "service"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIntegrationResponse(record))
}

// splitScopes accepts both repeated scope params and a single
// space or comma separated value.
func splitScopes(query url.Values) []string {
	var scopes []string
	for _, raw := range query["scope"] {
		for _, scope := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' }) {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
