package serverutils

import (
	"errors"

	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// NewErrorHandler renders every error returned from a handler as a BaseResponse.
// Internal details are logged, never sent to the client.
func NewErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		if appErr, ok := apperror.As(err); ok {
			if appErr.Status >= fiber.StatusInternalServerError {
				log.Error("HTTP", "Request failed", map[string]interface{}{
					"path":       ctx.Path(),
					"method":     ctx.Method(),
					"error_code": appErr.Code,
					"error":      err.Error(),
				})
			}
			return ctx.Status(appErr.Status).JSON(ErrorResponse(appErr.Status, appErr.Code, appErr.Message))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code := apperror.CodeInternal
			switch fiberErr.Code {
			case fiber.StatusNotFound:
				code = apperror.CodeNotFound
			case fiber.StatusRequestEntityTooLarge:
				code = apperror.CodeBodyTooLarge
			case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
				code = apperror.CodeValidation
			case fiber.StatusUnauthorized:
				code = apperror.CodeUnauthorized
			}
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, code, fiberErr.Message))
		}

		log.Error("HTTP", "Unhandled error", map[string]interface{}{
			"path":   ctx.Path(),
			"method": ctx.Method(),
			"error":  err.Error(),
		})
		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(fiber.StatusInternalServerError, apperror.CodeInternal, "internal server error"))
	}
}
