package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errFromDomain maps explorer errors to HTTP responses.
func errFromDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, usecases.ErrUnknownGesture),
		errors.Is(err, domain.ErrInvalidDifficulty):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrUnknownStop),
		errors.Is(err, domain.ErrUnknownTrail):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrNoStopSelected),
		errors.Is(err, domain.ErrPreconditionFailed):
		return errConflict(c, err.Error())
	case errors.Is(err, domain.ErrStaleSearch):
		return newError(c, 409, "stale_search", err.Error())
	case errors.Is(err, domain.ErrInvalidGeometry):
		return newError(c, 422, "invalid_geometry", err.Error())
	case errors.Is(err, domain.ErrSearchTimeout):
		return newError(c, 504, "search_timeout", err.Error())
	case errors.Is(err, domain.ErrTransport),
		errors.Is(err, domain.ErrDecode):
		LoggerFromCtx(c.UserContext()).Warn("backend error", "error", err)
		return newError(c, 502, "backend_error", err.Error())
	default:
		LoggerFromCtx(c.UserContext()).Error("unhandled error", "error", err)
		return errInternal(c, err.Error())
	}
}
