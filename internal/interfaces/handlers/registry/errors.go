package registry

import (
	"errors"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/infrastructure/locking"
	"carbon-registry/internal/middleware"
	"carbon-registry/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:    fiber.StatusBadRequest,
	domain.KindAuthorization: fiber.StatusForbidden,
	domain.KindNotFound:      fiber.StatusNotFound,
	domain.KindStateConflict: fiber.StatusConflict,
	domain.KindAccounting:    fiber.StatusUnprocessableEntity,
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var le *domain.LedgerError
	if errors.As(err, &le) {
		if status, ok := kindStatus[le.Kind]; ok {
			return status
		}
	}
	if errors.Is(err, locking.ErrLockTimeout) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	var le *domain.LedgerError
	if errors.As(err, &le) {
		return response.Coded(c, le.Message, status, le.Code, le.Name)
	}
	if status == fiber.StatusServiceUnavailable {
		return response.Error(c, err.Error(), status, nil)
	}
	log.Error().Str("trace_id", middleware.GetTraceID(c)).Err(err).Msg("ledger request failed")
	return response.Error(c, "Internal server error", status, nil)
}
