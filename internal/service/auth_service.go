package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"code-review-be/internal/dto"
	"code-review-be/internal/entity"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/pkg/mailer"
	"code-review-be/internal/pkg/metrics"
	"code-review-be/internal/repository/contract"
	"code-review-be/internal/repository/specification"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/pkg/events"
	"code-review-be/pkg/kvstore"
	"code-review-be/pkg/ratelimit"

	"gorm.io/gorm"
)

const (
	SignupOTPTTL = 10 * time.Minute
	ResendOTPTTL = 5 * time.Minute

	otpKeyPrefix      = "otp:"
	userIDMaxAttempts = 3
)

var (
	errTooManyAttempts = apperror.TooManyRequests("too many attempts, please try again later")
	errUserNotFound    = apperror.NotFound(apperror.CodeUserNotFound, "user not found")
)

type IAuthService interface {
	Signup(ctx context.Context, req *dto.SignupRequest) (*dto.SignupResponse, error)
	ResendOTP(ctx context.Context, req *dto.ResendOTPRequest) error
	VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, accessToken, refreshToken string)
}

type authService struct {
	uowFactory unitofwork.RepositoryFactory
	store      kvstore.Store
	limiter    *ratelimit.Limiter
	tokens     ITokenService
	hasher     PasswordHasher
	mailer     mailer.IEmailService
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewAuthService(
	uowFactory unitofwork.RepositoryFactory,
	store kvstore.Store,
	limiter *ratelimit.Limiter,
	tokens ITokenService,
	hasher PasswordHasher,
	emailService mailer.IEmailService,
	publisher events.Publisher,
	log logger.ILogger,
) IAuthService {
	return &authService{
		uowFactory: uowFactory,
		store:      store,
		limiter:    limiter,
		tokens:     tokens,
		hasher:     hasher,
		mailer:     emailService,
		publisher:  publisher,
		logger:     log,
	}
}

// trimEmail drops surrounding whitespace only; emails are case-sensitive as stored.
func trimEmail(email string) string {
	return strings.TrimSpace(email)
}

func otpKey(email string) string {
	return otpKeyPrefix + email
}

func (s *authService) Signup(ctx context.Context, req *dto.SignupRequest) (*dto.SignupResponse, error) {
	email := trimEmail(req.Email)

	if !s.limiter.AllowRule(ctx, ratelimit.Signup, email) {
		s.logger.Warn("AUTH", "Signup rate limit exceeded", map[string]interface{}{"email": email})
		return nil, errTooManyAttempts
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperror.BadRequest(apperror.CodePasswordMismatch, "passwords do not match")
	}
	if !IsStrongPassword(req.Password) {
		return nil, apperror.BadRequest(apperror.CodeWeakPassword,
			"password must be at least 8 characters and include upper-case, lower-case, digit and special characters")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.UserRepository()

	existing, err := repo.FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if existing != nil {
		s.logger.Warn("AUTH", "Signup for existing email", map[string]interface{}{"email": email})
		return nil, apperror.BadRequest(apperror.CodeUserExists, "a user with this email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	user := &entity.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hash,
	}
	if err := createUser(ctx, repo, user, s.logger); err != nil {
		return nil, err
	}

	if err := s.issueOTP(ctx, email, SignupOTPTTL); err != nil {
		return nil, err
	}

	s.logger.Info("AUTH", "User signed up", map[string]interface{}{"email": email, "user_id": user.Id})
	metrics.AuthEvents.WithLabelValues("signup").Inc()
	publish(ctx, s.publisher, s.logger, events.New(events.UserSignedUp, map[string]interface{}{
		"user_id": user.Id,
		"email":   email,
	}))

	return &dto.SignupResponse{Email: email}, nil
}

// createUser inserts user under a fresh random id, retrying when the id
// collides. A concurrent signup for the same email surfaces as user_exists.
func createUser(ctx context.Context, repo contract.UserRepository, user *entity.User, log logger.ILogger) error {
	var lastErr error
	for attempt := 0; attempt < userIDMaxAttempts; attempt++ {
		id, err := generateUserID()
		if err != nil {
			return apperror.Internal(err)
		}
		user.Id = id

		lastErr = repo.Create(ctx, user)
		if lastErr == nil {
			return nil
		}

		taken, err := repo.FindOne(ctx, specification.ByEmail{Email: user.Email})
		if err == nil && taken != nil {
			return apperror.BadRequest(apperror.CodeUserExists, "a user with this email already exists")
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			return apperror.Internal(lastErr)
		}
		log.Warn("AUTH", "User id collision, retrying", map[string]interface{}{"attempt": attempt + 1})
	}
	return apperror.Internal(lastErr)
}

func (s *authService) issueOTP(ctx context.Context, email string, ttl time.Duration) error {
	otp, err := generateOTP()
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.store.Set(ctx, otpKey(email), otp, ttl); err != nil {
		return apperror.Internal(err)
	}
	if err := s.mailer.SendOTP(email, otp); err != nil {
		return apperror.Upstream(apperror.CodeEmailDeliveryFailed, "failed to send verification email", err)
	}
	return nil
}

func (s *authService) ResendOTP(ctx context.Context, req *dto.ResendOTPRequest) error {
	email := trimEmail(req.Email)
	if email == "" {
		return apperror.BadRequest(apperror.CodeMissingEmail, "email is required")
	}

	if !s.limiter.AllowRule(ctx, ratelimit.ResendOTP, email) {
		s.logger.Warn("AUTH", "Resend OTP rate limit exceeded", map[string]interface{}{"email": email})
		return errTooManyAttempts
	}

	user, err := s.uowFactory.NewUnitOfWork(ctx).UserRepository().FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return apperror.Internal(err)
	}
	if user == nil {
		return errUserNotFound
	}
	if user.Verified {
		return apperror.BadRequest(apperror.CodeAlreadyVerified, "email is already verified")
	}

	if err := s.issueOTP(ctx, email, ResendOTPTTL); err != nil {
		return err
	}
	s.logger.Info("AUTH", "OTP resent", map[string]interface{}{"email": email})
	return nil
}

func (s *authService) VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest) (*dto.UserResponse, error) {
	email := trimEmail(req.Email)

	if !s.limiter.AllowRule(ctx, ratelimit.VerifyOTP, email) {
		s.logger.Warn("AUTH", "OTP verification rate limit exceeded", map[string]interface{}{"email": email})
		return nil, errTooManyAttempts
	}

	stored, err := s.store.Get(ctx, otpKey(email))
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return nil, apperror.Internal(err)
	}
	if err != nil || subtle.ConstantTimeCompare([]byte(stored), []byte(req.Otp)) != 1 {
		s.logger.Warn("AUTH", "Invalid OTP", map[string]interface{}{"email": email})
		return nil, apperror.BadRequest(apperror.CodeInvalidOTP, "invalid or expired code")
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).UserRepository()
	user, err := repo.FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if user == nil {
		return nil, errUserNotFound
	}

	if err := repo.MarkVerified(ctx, user.Id); err != nil {
		return nil, apperror.Internal(err)
	}
	user.Verified = true

	if err := s.store.Delete(ctx, otpKey(email)); err != nil {
		s.logger.Warn("AUTH", "Failed to delete used OTP", map[string]interface{}{"email": email, "error": err.Error()})
	}

	s.logger.Info("AUTH", "User verified email", map[string]interface{}{"email": email, "user_id": user.Id})
	metrics.AuthEvents.WithLabelValues("verify").Inc()
	publish(ctx, s.publisher, s.logger, events.New(events.UserVerified, map[string]interface{}{
		"user_id": user.Id,
		"email":   email,
	}))

	return toUserResponse(user), nil
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.Session, error) {
	email := trimEmail(req.Email)

	if !s.limiter.AllowRule(ctx, ratelimit.Login, email) {
		s.logger.Warn("AUTH", "Login rate limit exceeded", map[string]interface{}{"email": email})
		return nil, errTooManyAttempts
	}

	user, err := s.uowFactory.NewUnitOfWork(ctx).UserRepository().FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if user == nil {
		return nil, errUserNotFound
	}
	if !s.hasher.Compare(user.PasswordHash, req.Password) {
		s.logger.Warn("AUTH", "Invalid credentials", map[string]interface{}{"email": email})
		return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid credentials")
	}
	if !user.Verified {
		return nil, apperror.Forbidden(apperror.CodeEmailNotVerified, "email not verified")
	}

	session, err := newSession(ctx, s.tokens, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("AUTH", "User logged in", map[string]interface{}{"email": email, "user_id": user.Id})
	metrics.AuthEvents.WithLabelValues("login").Inc()
	publish(ctx, s.publisher, s.logger, events.New(events.UserLogin, map[string]interface{}{
		"user_id": user.Id,
		"method":  "password",
	}))
	return session, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.Unauthorized(apperror.CodeMissingRefreshToken, "refresh token missing")
	}

	access, err := s.tokens.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		metrics.AuthEvents.WithLabelValues("refresh").Inc()
		return access, nil
	case errors.Is(err, ErrInvalidToken):
		return "", apperror.Unauthorized(apperror.CodeInvalidRefreshToken, "invalid refresh token")
	case errors.Is(err, ErrTokenRevoked):
		return "", apperror.Unauthorized(apperror.CodeRefreshTokenRevoked, "refresh token revoked")
	default:
		return "", apperror.Internal(err)
	}
}

// Logout revokes the caller's refresh token when either cookie identifies
// them. It never fails; the transport clears cookies regardless.
func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) {
	userID := ""
	if accessToken != "" {
		if sub, err := s.tokens.VerifyAccess(accessToken); err == nil {
			userID = sub
		}
	}
	if userID == "" && refreshToken != "" {
		if claims, err := s.tokens.Verify(refreshToken); err == nil {
			userID = claims.Subject
		}
	}
	if userID == "" {
		return
	}

	if err := s.tokens.Revoke(ctx, userID); err != nil {
		s.logger.Warn("AUTH", "Failed to revoke refresh token", map[string]interface{}{"user_id": userID, "error": err.Error()})
		return
	}
	metrics.AuthEvents.WithLabelValues("logout").Inc()
	s.logger.Info("AUTH", "User logged out", map[string]interface{}{"user_id": userID})
}

func newSession(ctx context.Context, tokens ITokenService, user *entity.User) (*dto.Session, error) {
	access, err := tokens.IssueAccess(user.Id)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	refresh, err := tokens.IssueRefresh(ctx, user.Id)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &dto.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         toUserResponse(user),
	}, nil
}

func toUserResponse(u *entity.User) *dto.UserResponse {
	return &dto.UserResponse{
		Id:        u.Id,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

func publish(ctx context.Context, publisher events.Publisher, log logger.ILogger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn("EVENTS", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}
