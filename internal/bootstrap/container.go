package bootstrap

import (
	"context"
	"fmt"

	"code-review-be/internal/config"
	"code-review-be/internal/controller"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/internal/service"
	"code-review-be/pkg/ratelimit"
	"code-review-be/pkg/rag"

	"golang.org/x/crypto/bcrypt"
)

type Container struct {
	// Controllers
	AuthController   controller.IAuthController
	OAuthController  controller.IOAuthController
	ReviewController controller.IReviewController
	HealthController controller.IHealthController

	// Tokens resolves the optional caller identity on every /api request.
	Tokens  service.ITokenService
	Gateway *rag.Gateway
	Logger  logger.ILogger
}

// NewContainer wires services and controllers. It provisions the similarity
// index, so a dimension mismatch that cannot be repaired fails here.
func NewContainer(ctx context.Context, cfg *config.Config, deps Dependencies) (*Container, error) {
	uowFactory := unitofwork.NewRepositoryFactory(deps.DB)

	gateway := rag.NewGateway(deps.Embedder, deps.Index)
	if err := gateway.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("similarity index: %w", err)
	}

	limiter := ratelimit.NewLimiter(deps.Store, deps.Logger)
	tokens := service.NewTokenService(cfg.Auth.JWTSecret, deps.Store)
	hasher := service.NewBcryptHasher(bcrypt.DefaultCost)

	authService := service.NewAuthService(
		uowFactory,
		deps.Store,
		limiter,
		tokens,
		hasher,
		deps.Mailer,
		deps.Publisher,
		deps.Logger,
	)
	oauthService := service.NewOAuthService(deps.OAuthProviders, uowFactory, tokens, hasher, deps.Publisher, deps.Logger)
	reviewService := service.NewReviewService(uowFactory, gateway, deps.LLM, deps.Publisher, deps.Logger)

	pingDB := func(ctx context.Context) error {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	checks := map[string]controller.HealthCheck{
		"database": pingDB,
		"kvstore":  deps.Store.Ping,
	}

	return &Container{
		AuthController:   controller.NewAuthController(authService),
		OAuthController:  controller.NewOAuthController(oauthService, cfg.App.FrontendURL),
		ReviewController: controller.NewReviewController(reviewService),
		HealthController: controller.NewHealthController(checks),
		Tokens:           tokens,
		Gateway:          gateway,
		Logger:           deps.Logger,
	}, nil
}
