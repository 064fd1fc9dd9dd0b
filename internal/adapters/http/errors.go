package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Machine code: bad_request, invalid_radius, not_member, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// DegradedHeader is set when a read endpoint answers with an empty result
// because the index could not be reached.
const DegradedHeader = "X-Degraded"

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
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errorMapping is checked in order; the first sentinel matching wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidCoordinate, fiber.StatusBadRequest, "invalid_coordinate"},
	{domain.ErrInvalidRadius, fiber.StatusBadRequest, "invalid_radius"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "bad_request"},
	{domain.ErrMissingLocation, fiber.StatusNotFound, "missing_location"},
	{domain.ErrGroupNotFound, fiber.StatusNotFound, "group_not_found"},
	{domain.ErrNotMember, fiber.StatusForbidden, "not_member"},
	{domain.ErrGroupInactive, fiber.StatusConflict, "group_inactive"},
	{domain.ErrSuperseded, fiber.StatusConflict, "superseded"},
	{domain.ErrIndexUnavailable, fiber.StatusServiceUnavailable, "index_unavailable"},
	{context.DeadlineExceeded, fiber.StatusGatewayTimeout, "timeout"},
}

// writeError maps a usecase error onto an APIError response.
func writeError(c *fiber.Ctx, err error) error {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return newError(c, m.status, m.code, err.Error())
		}
	}
	return errInternal(c, err.Error())
}

// degraded answers a read with the empty body when the index is unreachable.
// Any other error is written as usual.
func degraded(c *fiber.Ctx, err error, empty interface{}) error {
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return writeError(c, err)
	}
	LoggerFromCtx(c.UserContext()).Warn("serving degraded response", "path", c.Path(), "error", err)
	c.Set(DegradedHeader, "index-unavailable")
	return c.JSON(empty)
}
