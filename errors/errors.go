package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrValidation          = fmt.Errorf("invalid request")
	ErrDuplicateName       = fmt.Errorf("participant name already taken")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrSessionExpired      = fmt.Errorf("session expired, join again")
	ErrSenderUnknown       = fmt.Errorf("sender is not a registered participant")
	ErrMessageNotFound     = fmt.Errorf("message not found")
	ErrForbidden           = fmt.Errorf("only the sender may delete a message")
	ErrStorageFailure      = fmt.Errorf("storage failure")
	ErrInvalidReplacement  = fmt.Errorf("replacement must be a single character")
	ErrRateLimited         = fmt.Errorf("too many requests")
)

// StorageFailure wraps a backing store error under ErrStorageFailure unless it
// already carries one of the domain sentinels.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrDuplicateName, ErrParticipantNotFound, ErrMessageNotFound, ErrStorageFailure,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, err)
}

// MapToHTTPStatus translates the error taxonomy into the status code returned
// by the HTTP layer. Unknown errors are reported as internal failures.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSenderUnknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
