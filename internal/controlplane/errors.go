package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/taskgraph/internal/models"
)

// Sentinel errors for control plane operations.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrTenantRequired = errors.New("X-Tenant-ID header required")
)

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrTenantRequired),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidEdge):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDuplicateEdge):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
