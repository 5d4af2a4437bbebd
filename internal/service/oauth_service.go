package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"code-review-be/internal/dto"
	"code-review-be/internal/entity"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/pkg/metrics"
	"code-review-be/internal/repository/specification"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/pkg/events"
)

var errOAuthFailed = apperror.BadRequest(apperror.CodeOAuthFailed, "authentication with the provider failed")

type IOAuthService interface {
	// LoginURL returns the provider consent URL and the state the caller
	// must hand back to HandleCallback.
	LoginURL(provider string) (url string, state string, err error)
	HandleCallback(ctx context.Context, provider, code, state, expectedState string) (*dto.Session, error)
}

type oauthService struct {
	providers  map[string]OAuthProvider
	uowFactory unitofwork.RepositoryFactory
	tokens     ITokenService
	hasher     PasswordHasher
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewOAuthService(
	providers map[string]OAuthProvider,
	uowFactory unitofwork.RepositoryFactory,
	tokens ITokenService,
	hasher PasswordHasher,
	publisher events.Publisher,
	log logger.ILogger,
) IOAuthService {
	return &oauthService{
		providers:  providers,
		uowFactory: uowFactory,
		tokens:     tokens,
		hasher:     hasher,
		publisher:  publisher,
		logger:     log,
	}
}

func newOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *oauthService) LoginURL(provider string) (string, string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", "", apperror.BadRequest(apperror.CodeUnknownProvider, "unsupported provider")
	}
	state, err := newOAuthState()
	if err != nil {
		return "", "", apperror.Internal(err)
	}
	return p.AuthCodeURL(state), state, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, provider, code, state, expectedState string) (*dto.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, apperror.BadRequest(apperror.CodeUnknownProvider, "unsupported provider")
	}
	if code == "" || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expectedState)) != 1 {
		s.logger.Warn("OAUTH", "Callback rejected: missing code or state mismatch", map[string]interface{}{"provider": provider})
		return nil, errOAuthFailed
	}

	identity, err := p.Identify(ctx, code)
	if err != nil {
		s.logger.Error("OAUTH", "Provider identification failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, errOAuthFailed
	}

	user, err := s.findOrCreateUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	session, err := newSession(ctx, s.tokens, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("OAUTH", "User logged in", map[string]interface{}{"provider": provider, "user_id": user.Id})
	metrics.AuthEvents.WithLabelValues("oauth_login").Inc()
	publish(ctx, s.publisher, s.logger, events.New(events.UserLogin, map[string]interface{}{
		"user_id": user.Id,
		"method":  provider,
	}))
	return session, nil
}

// findOrCreateUser links the federated identity to a local account. The
// provider has vouched for the address, so the account ends up verified.
func (s *oauthService) findOrCreateUser(ctx context.Context, identity *OAuthIdentity) (*entity.User, error) {
	email := trimEmail(identity.Email)
	repo := s.uowFactory.NewUnitOfWork(ctx).UserRepository()

	user, err := repo.FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, apperror.Internal(err)
	}

	if user != nil {
		if !user.Verified {
			if err := repo.MarkVerified(ctx, user.Id); err != nil {
				return nil, apperror.Internal(err)
			}
			user.Verified = true
		}
		return user, nil
	}

	password, err := randomPassword()
	if err != nil {
		return nil, apperror.Internal(err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	user = &entity.User{
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		Email:        email,
		PasswordHash: hash,
		Verified:     true,
	}
	if err := createUser(ctx, repo, user, s.logger); err != nil {
		// lost a race with a concurrent signup for the same address
		if appErr, ok := apperror.As(err); ok && appErr.Code == apperror.CodeUserExists {
			existing, findErr := repo.FindOne(ctx, specification.ByEmail{Email: email})
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return user, nil
}
