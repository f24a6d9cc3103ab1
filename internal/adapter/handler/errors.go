package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindInsufficientStock, domain.KindInvalidTransition:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindInsufficientStock, domain.KindInvalidTransition:
		return codes.FailedPrecondition
	case domain.KindForbidden:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// publicMessage hides internal error text from callers.
func publicMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
