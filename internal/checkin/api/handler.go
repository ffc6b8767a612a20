package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/checkin"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/ticketpdf"
	"ms-eventreg/internal/utils"
)

type Handler struct {
	Checkins *checkin.Service
	QRImages *qr.ImageRenderer
	PDF      *ticketpdf.Generator
	Log      *logger.Logger
}

// CheckIn transitions a ticket to used after validating the encrypted QR
// payload. Expected body: {"encrypted_qr": "...", "staff_user_id": "..."}.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedQR string `json:"encrypted_qr"`
		StaffUserID string `json:"staff_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body"))
		return
	}
	if req.EncryptedQR == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("encrypted_qr is required"))
		return
	}

	details, err := h.Checkins.CheckIn(r.Context(), req.EncryptedQR, req.StaffUserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("check-in successful", details))
}

// Validate is the dry-run gate check; it never mutates state and always
// answers 200 with the validation verdict.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body"))
		return
	}

	result := h.Checkins.ValidateOnly(r.Context(), req.EncryptedQR)
	if result.IsValid {
		writeJSON(w, http.StatusOK, utils.SuccessResponse(result.Message, result))
		return
	}
	writeJSON(w, http.StatusOK, utils.APIResponse{
		Success:   false,
		Message:   result.Message,
		Data:      result,
		Errors:    result.Errors,
		Timestamp: time.Now(),
	})
}

func (h *Handler) GetTicketByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	details, err := h.Checkins.GetTicketByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket found", details))
}

func (h *Handler) UndoCheckIn(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	var req struct {
		StaffUserID string `json:"staff_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body"))
		return
	}

	if err := h.Checkins.UndoCheckIn(r.Context(), ticketID, req.StaffUserID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("check-in undone", nil))
}

// TicketQRImage renders the ticket's opaque payload as a PNG.
func (h *Handler) TicketQRImage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	_, payload, err := h.Checkins.TicketArtifacts(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	img, err := h.QRImages.RenderImage(payload)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(img)
}

// TicketDocument renders the printable PDF for a ticket.
func (h *Handler) TicketDocument(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	details, payload, err := h.Checkins.TicketArtifacts(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	img, err := h.QRImages.RenderImage(payload)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.PDF.RenderTicketDocument(details, img)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Write(doc)
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
