package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks request payloads rejected before reaching a service.
var ErrValidation = errors.New("validation failed")

// RespondError is the fallback mapping for errors no handler matched
// explicitly: malformed or invalid requests become 400, everything else 500.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrValidation), errors.As(err, &verrs):
		Problem(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "INTERNAL", "")
	}
}
