package controller

import (
	"code-review-be/internal/pkg/serverutils"
	"code-review-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IOAuthController interface {
	RegisterRoutes(r fiber.Router)
	Login(ctx *fiber.Ctx) error
	Callback(ctx *fiber.Ctx) error
}

type oauthController struct {
	service     service.IOAuthService
	frontendURL string
}

func NewOAuthController(service service.IOAuthService, frontendURL string) IOAuthController {
	return &oauthController{service: service, frontendURL: frontendURL}
}

func (c *oauthController) RegisterRoutes(r fiber.Router) {
	// e.g., /auth/google/login
	h := r.Group("/auth")
	h.Get("/:provider/login", c.Login)
	h.Get("/:provider/callback", c.Callback)
}

func (c *oauthController) Login(ctx *fiber.Ctx) error {
	url, state, err := c.service.LoginURL(ctx.Params("provider"))
	if err != nil {
		return err
	}

	serverutils.SetOAuthStateCookie(ctx, state)
	return ctx.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (c *oauthController) Callback(ctx *fiber.Ctx) error {
	expectedState := ctx.Cookies(serverutils.OAuthStateCookie)
	serverutils.ClearCookie(ctx, serverutils.OAuthStateCookie)

	session, err := c.service.HandleCallback(
		ctx.UserContext(),
		ctx.Params("provider"),
		ctx.Query("code"),
		ctx.Query("state"),
		expectedState,
	)
	if err != nil {
		return err
	}

	serverutils.SetSessionCookies(ctx, session.AccessToken, session.RefreshToken)
	return ctx.Redirect(c.frontendURL, fiber.StatusTemporaryRedirect)
}
