package controller

import (
	"io"

	"code-review-be/internal/dto"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/serverutils"
	"code-review-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	formFieldCode           = "code"
	formFieldFile           = "file"
	formFieldConversationID = "conversation_id"
)

type IReviewController interface {
	RegisterRoutes(r fiber.Router)
	ReviewText(ctx *fiber.Ctx) error
	ReviewFile(ctx *fiber.Ctx) error
}

type reviewController struct {
	service service.IReviewService
}

func NewReviewController(service service.IReviewService) IReviewController {
	return &reviewController{service: service}
}

func (c *reviewController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/review")
	h.Post("/text", c.ReviewText)
	h.Post("/file", c.ReviewFile)
}

// ReviewText accepts the code as a form field (urlencoded or multipart).
func (c *reviewController) ReviewText(ctx *fiber.Ctx) error {
	req := &dto.ReviewTextRequest{
		Code:           ctx.FormValue(formFieldCode),
		ConversationId: ctx.FormValue(formFieldConversationID),
	}

	res, err := c.service.ReviewText(ctx.UserContext(), serverutils.UserIDFromCtx(ctx), req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Review generated", res))
}

func (c *reviewController) ReviewFile(ctx *fiber.Ctx) error {
	header, err := ctx.FormFile(formFieldFile)
	if err != nil {
		return apperror.BadRequest(apperror.CodeValidation, "file is required")
	}

	f, err := header.Open()
	if err != nil {
		return apperror.BadRequest(apperror.CodeValidation, "could not read uploaded file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return apperror.BadRequest(apperror.CodeValidation, "could not read uploaded file")
	}

	req := &dto.ReviewFileRequest{
		Filename:       header.Filename,
		Content:        content,
		ConversationId: ctx.FormValue(formFieldConversationID),
	}

	res, err := c.service.ReviewFile(ctx.UserContext(), serverutils.UserIDFromCtx(ctx), req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Review generated", res))
}
