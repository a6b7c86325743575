package http

import (
	"errors"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

var errInvalidJSON = errors.New("invalid JSON body")

type errorResponse struct {
	Error   string            `json:"error"`
	Details []core.FieldError `json:"details,omitempty"`
}

// Generic messages for failures the caller cannot act on, per operation.
var internalMessages = map[string]string{
	log.OpList:       "Failed to fetch expenses",
	log.OpSummary:    "Failed to fetch expense summary",
	log.OpCreate:     "Failed to create expense",
	log.OpCreateBulk: "Failed to create bulk expenses",
	log.OpUpdate:     "Failed to update expense",
	log.OpDelete:     "Failed to delete expense",
}

// classifyError maps an error to its status, body and log category.
func classifyError(err error, op string) (int, errorResponse, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: "Invalid input", Details: ve.Fields}, log.ErrorTypeValidation
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"}, log.ErrorTypeValidation
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: "Authentication required"}, log.ErrorTypeAuth
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "Insufficient permissions"}, log.ErrorTypeForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Expense not found"}, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrInvalidReference):
		return http.StatusUnprocessableEntity, errorResponse{Error: "Referenced record does not exist"}, log.ErrorTypeReference
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "Service temporarily unavailable"}, log.ErrorTypeUnavailable
	}

	msg, ok := internalMessages[op]
	if !ok {
		msg = "Internal server error"
	}
	return http.StatusInternalServerError, errorResponse{Error: msg}, log.ErrorTypeInternal
}

// writeError is used by middleware, where no operation is known yet.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeOpError(w, r, err, "")
}

func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, body, errType := classifyError(err, op)
	ctx := r.Context()
	logger := log.FromContext(ctx)

	switch {
	case status >= 500:
		logger.ErrorContext(ctx, "Request failed",
			log.FieldError, err.Error(),
			log.FieldErrorType, errType,
			log.FieldOperation, op)
	default:
		logger.DebugContext(ctx, "Request rejected",
			log.FieldError, err.Error(),
			log.FieldErrorType, errType,
			log.FieldOperation, op)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, body)
}

// writeRateLimited runs after the limiter has set Retry-After.
func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests, please try again later"})
}
