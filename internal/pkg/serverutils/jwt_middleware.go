package serverutils

import (
	"github.com/gofiber/fiber/v2"
)

const LocalUserID = "user_id"

// AccessTokenVerifier resolves an access token to its subject.
type AccessTokenVerifier interface {
	VerifyAccess(token string) (string, error)
}

// OptionalIdentity attaches the caller's user id when a valid access_token
// cookie is present. Requests without one pass through anonymously.
func OptionalIdentity(verifier AccessTokenVerifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := ctx.Cookies(AccessTokenCookie)
		if tokenStr == "" {
			return ctx.Next()
		}
		if userID, err := verifier.VerifyAccess(tokenStr); err == nil {
			ctx.Locals(LocalUserID, userID)
		}
		return ctx.Next()
	}
}

// UserIDFromCtx returns the identity set by OptionalIdentity, or nil.
func UserIDFromCtx(ctx *fiber.Ctx) *string {
	userID, ok := ctx.Locals(LocalUserID).(string)
	if !ok || userID == "" {
		return nil
	}
	return &userID
}
