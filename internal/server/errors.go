package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mateo/pagesmith/internal/job"
	"github.com/mateo/pagesmith/internal/patch"
	"github.com/mateo/pagesmith/internal/store"
)

// ErrValidation indicates request validation failure before any external call.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus maps service errors onto response codes. Precondition conflicts
// get 409 so callers know to re-read and retry; exhausted patch tiers whose
// cause was the text service get 502, instruction problems get 400.
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var terminal *job.TerminalError
	var mismatch *job.StepMismatchError
	var tier *patch.TierError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &terminal):
		return http.StatusConflict
	case errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.As(err, &tier):
		if tier.Cause != nil {
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
