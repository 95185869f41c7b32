package httpx

import (
	"errors"
	"net/http"
)

// ErrUnauthorized reports a request without valid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// RespondError maps transport errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		ProblemType(w, http.StatusUnauthorized, "urn:proforma:error:unauthorized", "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
