package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps domain sentinels to HTTP status codes. The cause
// chain stays server-side; clients get the sentinel's message only.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, domain.ErrInvalidAmount.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, domain.ErrInvalidState.Error())
	case errors.Is(err, domain.ErrOfferAlreadyTaken):
		writeError(w, http.StatusConflict, domain.ErrOfferAlreadyTaken.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, domain.ErrInsufficientFunds.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
	case errors.Is(err, domain.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, domain.ErrBusy.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
