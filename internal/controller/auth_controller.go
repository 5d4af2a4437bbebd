package controller

import (
	"code-review-be/internal/dto"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/serverutils"
	"code-review-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAuthController interface {
	RegisterRoutes(r fiber.Router)
	Signup(ctx *fiber.Ctx) error
	Login(ctx *fiber.Ctx) error
	VerifyOTP(ctx *fiber.Ctx) error
	ResendOTP(ctx *fiber.Ctx) error
	Refresh(ctx *fiber.Ctx) error
	Logout(ctx *fiber.Ctx) error
}

type authController struct {
	service service.IAuthService
}

func NewAuthController(service service.IAuthService) IAuthController {
	return &authController{service: service}
}

func (c *authController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/auth")
	h.Post("/signup", c.Signup)
	h.Post("/login", c.Login)
	h.Post("/verify", c.VerifyOTP)
	h.Post("/resend", c.ResendOTP)
	h.Post("/refresh", c.Refresh)
	h.Post("/logout", c.Logout)
}

func parseBody(ctx *fiber.Ctx, out interface{}) error {
	if err := ctx.BodyParser(out); err != nil {
		return apperror.BadRequest(apperror.CodeValidation, "invalid request body")
	}
	return nil
}

func (c *authController) Signup(ctx *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	res, err := c.service.Signup(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Signup successful. Check your email for the verification code.", res))
}

func (c *authController) VerifyOTP(ctx *fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	user, err := c.service.VerifyOTP(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Email verified successfully", user))
}

func (c *authController) ResendOTP(ctx *fiber.Ctx) error {
	var req dto.ResendOTPRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	if err := c.service.ResendOTP(ctx.UserContext(), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Verification code sent", nil))
}

func (c *authController) Login(ctx *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	session, err := c.service.Login(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	serverutils.SetSessionCookies(ctx, session.AccessToken, session.RefreshToken)
	return ctx.JSON(serverutils.SuccessResponse("Login successful", session.User))
}

func (c *authController) Refresh(ctx *fiber.Ctx) error {
	access, err := c.service.Refresh(ctx.UserContext(), ctx.Cookies(serverutils.RefreshTokenCookie))
	if err != nil {
		return err
	}

	serverutils.SetAccessCookie(ctx, access)
	return ctx.JSON(serverutils.SuccessResponse[any]("Token refreshed", nil))
}

// Logout always succeeds and always clears both cookies.
func (c *authController) Logout(ctx *fiber.Ctx) error {
	c.service.Logout(
		ctx.UserContext(),
		ctx.Cookies(serverutils.AccessTokenCookie),
		ctx.Cookies(serverutils.RefreshTokenCookie),
	)

	serverutils.ClearSessionCookies(ctx)
	return ctx.JSON(serverutils.SuccessResponse[any]("Logged out successfully", nil))
}
