// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/credinet/credinet/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		verr *shared.ValidationError
		cerr *shared.ConflictError
		perr *shared.PreconditionFailedError
	)
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title: "Validation Failed", Status: http.StatusBadRequest, Detail: verr.Message, Field: verr.Field,
		})
	case errors.As(err, &cerr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title: "Conflict", Status: http.StatusConflict, Detail: err.Error(), CurrentState: cerr.Current,
		})
	case errors.As(err, &perr):
		JSON(w, http.StatusPreconditionFailed, ProblemDetail{
			Title: "Precondition Failed", Status: http.StatusPreconditionFailed, Detail: perr.Reason, Reason: perr.Reason,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case shared.IsSerializationFailure(err):
		Problem(w, http.StatusConflict, "Conflict", shared.ErrConcurrentUpdate.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
