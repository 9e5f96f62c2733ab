package handlers

import (
	"net/http"

	"masterok/internal/auth"
	"masterok/internal/models"
	"masterok/internal/services"
)

// RequestHandler serves the job ledger and provider selection.
type RequestHandler struct {
	Requests  *services.RequestService
	Responses *services.ResponseService
	Match     *services.MatchService
	Log       Logger
}

// identity returns the caller set by the auth middleware.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
	}
	return id, ok
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	var in models.RequestInput
	if !decodeJSON(w, r, &in) {
		return
	}
	req, err := h.Requests.CreateRequest(r.Context(), actor, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := models.RequestFilter{
		Type:     q.Get("type"),
		District: q.Get("district"),
		Status:   q.Get("status"),
		Sort:     q.Get("sort_by"),
		Order:    q.Get("sort_order"),
		Page:     intQuery(r, "page", 1),
		PerPage:  intQuery(r, "per_page", 0),
	}
	v := models.ValidationErrors{}
	if f.MinBudget, ok = floatQuery(r, "min_budget"); !ok {
		v.Add("min_budget", "must be a number")
	}
	if f.MaxBudget, ok = floatQuery(r, "max_budget"); !ok {
		v.Add("max_budget", "must be a number")
	}
	if err := v.Err(); err != nil {
		writeError(w, h.Log, err)
		return
	}
	page, err := h.Requests.ListRequests(r.Context(), actor, f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	req, err := h.Requests.GetRequest(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	var patch models.RequestPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	req, err := h.Requests.UpdateRequest(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	if err := h.Requests.DeleteRequest(r.Context(), actor, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	req, err := h.Requests.CancelRequest(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	req, err := h.Requests.CompleteRequest(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	stats, err := h.Requests.Statistics(r.Context(), actor)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RequestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	var in models.ResponseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	resp, err := h.Responses.SubmitResponse(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *RequestHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	list, err := h.Responses.ListResponses(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type selectBody struct {
	ResponseID int64 `json:"response_id"`
}

func (h *RequestHandler) Select(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}
	var body selectBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ResponseID <= 0 {
		writeError(w, h.Log, models.ValidationErrors{"response_id": "is required"})
		return
	}
	sel, err := h.Match.SelectProvider(r.Context(), actor, id, body.ResponseID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}
