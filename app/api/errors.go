package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"chartsight/types"
)

// ErrorHandler maps retrieval-layer errors to HTTP responses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(types.ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var ioErr *types.IOError
	if errors.As(err, &ioErr) {
		return c.Status(fiber.StatusBadRequest).JSON(NewError(fiber.StatusBadRequest, ioErr.Error()))
	}
	var computeErr *types.ComputeError
	if errors.As(err, &computeErr) {
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, computeErr.Error()))
	}
	var consistencyErr *types.ConsistencyError
	if errors.As(err, &consistencyErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, consistencyErr.Error()))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, err.Error()))
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
