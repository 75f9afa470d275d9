package httptransport

import (
	"encoding/json"
	"net/http"

	jsonWriter "outpost/internal/transport/http/json"
	"outpost/internal/transport/http/shared"
	dErrors "outpost/pkg/domain-errors"
)

type smsStartRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type smsCompleteRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTPCode     string `json:"otp_code"`
}

type socialLoginRequest struct {
	Token string `json:"token"`
}

type logoutRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleSMSStart(w http.ResponseWriter, r *http.Request) {
	var req smsStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	handle, err := h.auth.StartSMSLogin(r.Context(), req.PhoneNumber)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonWriter.WriteJSON(w, http.StatusOK, handle)
}

func (h *Handler) handleSMSComplete(w http.ResponseWriter, r *http.Request) {
	var req smsCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.auth.CompleteSMSLogin(r.Context(), req.PhoneNumber, req.OTPCode)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonWriter.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	var req socialLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.auth.LoginSocial(r.Context(), req.Token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonWriter.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "user_id is required"))
		return
	}

	if err := h.auth.Logout(r.Context(), req.UserID); err != nil {
		shared.WriteError(w, err)
		return
	}

	jsonWriter.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
