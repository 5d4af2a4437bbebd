package serverutils

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	OAuthStateCookie   = "oauth_state"

	AccessTokenMaxAge  = 30 * 60
	RefreshTokenMaxAge = 30 * 24 * 60 * 60
	OAuthStateMaxAge   = 10 * 60
)

// IsSecureRequest reports whether cookies for this request should carry the Secure flag.
func IsSecureRequest(ctx *fiber.Ctx) bool {
	return ctx.Protocol() == "https"
}

func setCookie(ctx *fiber.Ctx, name, value string, maxAge int, sameSite string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		HTTPOnly: true,
		Secure:   IsSecureRequest(ctx),
		SameSite: sameSite,
	})
}

func SetAccessCookie(ctx *fiber.Ctx, token string) {
	setCookie(ctx, AccessTokenCookie, token, AccessTokenMaxAge, fiber.CookieSameSiteStrictMode)
}

func SetSessionCookies(ctx *fiber.Ctx, accessToken, refreshToken string) {
	SetAccessCookie(ctx, accessToken)
	setCookie(ctx, RefreshTokenCookie, refreshToken, RefreshTokenMaxAge, fiber.CookieSameSiteStrictMode)
}

// SetOAuthStateCookie uses Lax so the cookie survives the provider's top-level redirect back.
func SetOAuthStateCookie(ctx *fiber.Ctx, state string) {
	setCookie(ctx, OAuthStateCookie, state, OAuthStateMaxAge, fiber.CookieSameSiteLaxMode)
}

func ClearCookie(ctx *fiber.Ctx, name string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   IsSecureRequest(ctx),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func ClearSessionCookies(ctx *fiber.Ctx) {
	ClearCookie(ctx, AccessTokenCookie)
	ClearCookie(ctx, RefreshTokenCookie)
}
