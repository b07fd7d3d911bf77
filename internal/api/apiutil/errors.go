// internal/api/apiutil/errors.go
package apiutil

import (
	"errors"
	"net/http"

	"github.com/codr1/Fitclub/internal/models"
)

var domainErrorStatus = []struct {
	err    error
	status int
}{
	{models.ErrClassNotFound, http.StatusNotFound},
	{models.ErrBookingNotFound, http.StatusNotFound},
	{models.ErrChildNotFound, http.StatusNotFound},
	{models.ErrScheduleNotFound, http.StatusNotFound},
	{models.ErrLocationNotFound, http.StatusNotFound},
	{models.ErrPackageUnavailable, http.StatusNotFound},
	{models.ErrClassFull, http.StatusConflict},
	{models.ErrAlreadyBooked, http.StatusConflict},
	{models.ErrClassStarted, http.StatusConflict},
	{models.ErrClassNotBookable, http.StatusConflict},
	{models.ErrClassCancelled, http.StatusConflict},
	{models.ErrBookingNotActive, http.StatusConflict},
	{models.ErrBookingNotCancellable, http.StatusConflict},
	{models.ErrInsufficientCredits, http.StatusConflict},
	{models.ErrPurchaseNotPending, http.StatusConflict},
	{models.ErrAlreadyCheckedIn, http.StatusConflict},
	{models.ErrCapacityBelowBookings, http.StatusConflict},
	{models.ErrScheduleEnded, http.StatusConflict},
	{models.ErrChildHasBookings, http.StatusConflict},
	{models.ErrWrongLocation, http.StatusUnprocessableEntity},
	{models.ErrOutsideCheckinWindow, http.StatusUnprocessableEntity},
	{models.ErrInvalidAttendance, http.StatusBadRequest},
	{models.ErrInvalidApplyTo, http.StatusBadRequest},
	{models.ErrMonthTooFar, http.StatusBadRequest},
	{models.ErrInvalidCoach, http.StatusBadRequest},
	{models.ErrInvalidClassType, http.StatusBadRequest},
	{models.ErrInvalidClassTime, http.StatusBadRequest},
	{models.ErrInvalidCapacity, http.StatusBadRequest},
	{models.ErrInvalidCreditAmount, http.StatusBadRequest},
}

// DomainError converts a models sentinel into a HandlerError carrying the
// matching status. Other errors become a 500 with fallback as the message.
func DomainError(err error, fallback string) HandlerError {
	var herr HandlerError
	if errors.As(err, &herr) {
		return herr
	}
	for _, entry := range domainErrorStatus {
		if errors.Is(err, entry.err) {
			return HandlerError{Status: entry.status, Message: entry.err.Error(), Err: err}
		}
	}
	return HandlerError{Status: http.StatusInternalServerError, Message: fallback, Err: err}
}
