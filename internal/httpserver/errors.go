package httpserver

import (
	"net/http"

	"medchat/internal/domain"
)

type errorResponse struct {
	Error string      `json:"error"`
	Code  domain.Code `json:"code"`
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeInvalidState, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// writeError maps a service error to a status and a client-safe body.
// Errors without a domain code become 400 with a generic message.
func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		code = domain.CodeBadRequest
	}
	writeJSON(w, statusFor(code), errorResponse{Error: domain.PublicMessage(err), Code: code})
}
