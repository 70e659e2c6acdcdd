package iop

import (
	"errors"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/hosting"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/search"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// MapError translates a domain error to the nearest wire status. Everything
// that reaches a handler ends up here; nothing else crosses the wire.
func MapError(err error) (iop.Status, string) {
	var hostingField *hosting.ValidationError
	if errors.As(err, &hostingField) {
		return iop.StatusErrorInvalidValue, hostingField.Field
	}
	var searchField *search.ValidationError
	if errors.As(err, &searchField) {
		return iop.StatusErrorInvalidValue, searchField.Field
	}

	switch {
	case errors.Is(err, hosting.ErrQuotaExceeded):
		return iop.StatusErrorQuotaExceeded, ""
	case errors.Is(err, hosting.ErrAlreadyHosted),
		errors.Is(err, models.ErrAlreadyExists):
		return iop.StatusErrorAlreadyExists, ""
	case errors.Is(err, hosting.ErrNotHosted),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, search.ErrTokenNotFound):
		return iop.StatusErrorNotFound, ""
	case errors.Is(err, hosting.ErrUninitialized):
		return iop.StatusErrorUninitialized, ""
	case errors.Is(err, hosting.ErrCancelled):
		return iop.StatusErrorRejected, ""
	case errors.Is(err, hosting.ErrSignature),
		errors.Is(err, neighborhood.ErrBadProfileSignature):
		return iop.StatusErrorInvalidSignature, ""
	case errors.Is(err, neighborhood.ErrUnknownPeer):
		return iop.StatusErrorRejected, ""
	case errors.Is(err, neighborhood.ErrBatchTooLarge):
		return iop.StatusErrorInvalidValue, "items"
	case errors.Is(err, store.ErrLockContended):
		return iop.StatusErrorInternal, ""
	default:
		return iop.StatusErrorInternal, ""
	}
}

// errorMessage builds the response for a failed handler, logging internal
// failures that the status code hides from the client.
func (c *Connection) errorMessage(id uint32, err error) *iop.Message {
	status, details := MapError(err)
	if status == iop.StatusErrorInternal {
		logger.Error("Request failed",
			"conn_id", c.connID, "role", c.role.String(), "error", err)
	}
	return &iop.Message{
		ID:       id,
		Response: &iop.Response{Status: status, Details: details},
	}
}
