package plugins

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/uwb-manager/driver"
	"github.com/linht/uwb-manager/radioerr"
	"github.com/linht/uwb-manager/reg"
	"github.com/linht/uwb-manager/transport"
)

var errUnknownRegister = errors.New("unknown register")

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// SendDeviceError sends a transceiver error with a status code matching its cause
func SendDeviceError(c *fiber.Ctx, err error) error {
	return SendError(c, statusFor(err), err)
}

func statusFor(err error) int {
	var rxErr radioerr.ReceiverError
	var cmdErr *radioerr.FastCommandError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &rxErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &cmdErr), errors.Is(err, driver.ErrChannelBusy):
		return fiber.StatusConflict
	case errors.Is(err, errUnknownRegister):
		return fiber.StatusNotFound
	case errors.Is(err, reg.ErrNotReadable),
		errors.Is(err, reg.ErrNotWritable),
		errors.Is(err, reg.ErrFieldBounds),
		errors.Is(err, transport.ErrPayloadLength),
		errors.Is(err, driver.ErrFrameTooLong):
		return fiber.StatusBadRequest
	case errors.Is(err, driver.ErrUnknownDevice):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
