package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/cancellation"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/registration"
	"ms-eventreg/internal/utils"
)

type Handler struct {
	Registrations *registration.Service
	Cancellations *cancellation.Service
	Log           *logger.Logger
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registration.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body"))
		return
	}

	result, err := h.Registrations.RegisterForEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, utils.SuccessResponse("registration confirmed", result))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationID")

	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body"))
		return
	}

	if err := h.Cancellations.CancelRegistration(r.Context(), registrationID, req.Actor, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("registration cancelled", nil))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	ae := apperr.FromError(err)
	if ae.Kind == apperr.Internal {
		h.Log.Error("API", err.Error())
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error"))
		return
	}
	writeJSON(w, apperr.HTTPStatus(ae.Kind), utils.ErrorResponse(ae.Message, ae.Errs...))
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
