package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"code-review-be/internal/dto"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/repository/specification"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/pkg/events"
	"code-review-be/pkg/kvstore"
	"code-review-be/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Str0ng!Pass"

type authFixture struct {
	svc    IAuthService
	tokens ITokenService
	mr     *miniredis.Miniredis
	mailer *fakeMailer
	events *events.Recorder
	uow    unitofwork.RepositoryFactory
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStore(kvstore.NewRedisClient(mr.Addr()))
	log := logger.NewNopLogger()
	uow := unitofwork.NewRepositoryFactory(newTestDB(t))
	tokens := NewTokenService("test-secret", store)
	mailer := newFakeMailer()
	recorder := &events.Recorder{}

	svc := NewAuthService(uow, store, ratelimit.NewLimiter(store, log), tokens, fastHasher(), mailer, recorder, log)
	return &authFixture{svc: svc, tokens: tokens, mr: mr, mailer: mailer, events: recorder, uow: uow}
}

func signupRequest(email string) *dto.SignupRequest {
	return &dto.SignupRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	}
}

func (f *authFixture) signupAndVerify(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, signupRequest(email))
	require.NoError(t, err)
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: email, Otp: f.mailer.lastOTP(email)})
	require.NoError(t, err)
}

func TestSignup_CreatesUnverifiedUserAndSendsOTP(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, signupRequest("  ada@example.com "))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.Email)

	user, err := f.uow.NewUnitOfWork(ctx).UserRepository().FindOne(ctx, specification.ByEmail{Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.False(t, user.Verified)
	assert.Len(t, user.Id, 12)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	otp := f.mailer.lastOTP("ada@example.com")
	assert.Regexp(t, `^\d{6}$`, otp)
	stored, err := f.mr.Get("otp:ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, otp, stored)
	assert.Equal(t, SignupOTPTTL, f.mr.TTL("otp:ada@example.com"))

	assert.False(t, f.mr.Exists("refresh:"+user.Id), "signup must not issue tokens")
	assert.Equal(t, []string{events.UserSignedUp}, f.events.Types())
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *dto.SignupRequest)
		wantCode string
	}{
		{"password mismatch", func(r *dto.SignupRequest) { r.ConfirmPassword = "Other!Pass1" }, apperror.CodePasswordMismatch},
		{"too short", func(r *dto.SignupRequest) { r.Password, r.ConfirmPassword = "Ab1!", "Ab1!" }, apperror.CodeWeakPassword},
		{"no upper", func(r *dto.SignupRequest) { r.Password, r.ConfirmPassword = "str0ng!pass", "str0ng!pass" }, apperror.CodeWeakPassword},
		{"no lower", func(r *dto.SignupRequest) { r.Password, r.ConfirmPassword = "STR0NG!PASS", "STR0NG!PASS" }, apperror.CodeWeakPassword},
		{"no digit", func(r *dto.SignupRequest) { r.Password, r.ConfirmPassword = "Strong!Pass", "Strong!Pass" }, apperror.CodeWeakPassword},
		{"no special", func(r *dto.SignupRequest) { r.Password, r.ConfirmPassword = "Str0ngPass", "Str0ngPass" }, apperror.CodeWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			req := signupRequest("ada@example.com")
			tt.mutate(req)

			_, err := f.svc.Signup(context.Background(), req)
			requireAppError(t, err, http.StatusBadRequest, tt.wantCode)
			assert.Empty(t, f.mailer.lastOTP("ada@example.com"))
		})
	}
}

func TestSignup_ExistingEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, signupRequest("ada@example.com"))
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeUserExists)

	count, err := f.uow.NewUnitOfWork(ctx).UserRepository().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSignup_EmailIsCaseSensitive(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("Ada.Lovelace@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, signupRequest("ada.lovelace@example.com"))
	require.NoError(t, err)

	repo := f.uow.NewUnitOfWork(ctx).UserRepository()
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	stored, err := repo.FindOne(ctx, specification.ByEmail{Email: "Ada.Lovelace@example.com"})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Ada.Lovelace@example.com", stored.Email)

	// verifying one spelling leaves the other account untouched
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "Ada.Lovelace@example.com", Otp: f.mailer.lastOTP("Ada.Lovelace@example.com")})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, &dto.LoginRequest{Email: "ada.lovelace@example.com", Password: testPassword})
	requireAppError(t, err, http.StatusForbidden, apperror.CodeEmailNotVerified)
	_, err = f.svc.Login(ctx, &dto.LoginRequest{Email: "Ada.Lovelace@example.com", Password: testPassword})
	require.NoError(t, err)
}

func TestSignup_EmailDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.mailer.fail = true

	_, err := f.svc.Signup(context.Background(), signupRequest("ada@example.com"))
	requireAppError(t, err, http.StatusBadGateway, apperror.CodeEmailDeliveryFailed)
}

func TestSignup_RateLimited(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < ratelimit.Signup.Limit; i++ {
		req := signupRequest("ada@example.com")
		req.ConfirmPassword = "nope"
		_, err := f.svc.Signup(ctx, req)
		requireAppError(t, err, http.StatusBadRequest, apperror.CodePasswordMismatch)
	}

	_, err := f.svc.Signup(ctx, signupRequest("ada@example.com"))
	requireAppError(t, err, http.StatusTooManyRequests, apperror.CodeRateLimited)

	_, err = f.svc.Signup(ctx, signupRequest("grace@example.com"))
	assert.NoError(t, err, "limits are per email")
}

func TestSignup_FailsOpenWithoutCounterStore(t *testing.T) {
	f := newAuthFixture(t)
	limiterStore := kvstore.NewRedisStore(kvstore.NewRedisClient("127.0.0.1:1"))
	log := logger.NewNopLogger()
	svc := NewAuthService(f.uow, kvstore.NewMemoryStore(), ratelimit.NewLimiter(limiterStore, log),
		f.tokens, fastHasher(), f.mailer, nil, log)

	_, err := svc.Signup(context.Background(), signupRequest("ada@example.com"))
	assert.NoError(t, err)
}

func TestVerifyOTP(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)
	otp := f.mailer.lastOTP("ada@example.com")

	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: wrong})
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeInvalidOTP)

	user, err := f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: otp})
	require.NoError(t, err)
	assert.True(t, user.Verified)
	assert.False(t, f.mr.Exists("otp:ada@example.com"), "OTP is single use")

	stored, err := f.uow.NewUnitOfWork(ctx).UserRepository().FindOne(ctx, specification.ByEmail{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, stored.Verified)

	assert.Equal(t, []string{events.UserSignedUp, events.UserVerified}, f.events.Types())
}

func TestVerifyOTP_ExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)
	otp := f.mailer.lastOTP("ada@example.com")

	f.mr.FastForward(SignupOTPTTL + time.Second)
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: otp})
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeInvalidOTP)
}

func TestVerifyOTP_UserMissing(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mr.Set("otp:ghost@example.com", "123456"))

	_, err := f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ghost@example.com", Otp: "123456"})
	requireAppError(t, err, http.StatusNotFound, apperror.CodeUserNotFound)
}

func TestVerifyOTP_RateLimited(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)
	otp := f.mailer.lastOTP("ada@example.com")

	for i := 0; i < ratelimit.VerifyOTP.Limit; i++ {
		_, err := f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: "abcdef"})
		requireAppError(t, err, http.StatusBadRequest, apperror.CodeInvalidOTP)
	}

	// even the right code is refused once the window is exhausted
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: otp})
	requireAppError(t, err, http.StatusTooManyRequests, apperror.CodeRateLimited)

	f.mr.FastForward(ratelimit.VerifyOTP.Window + time.Second)
	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: otp})
	assert.NoError(t, err)
}

func TestResendOTP(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	err := f.svc.ResendOTP(ctx, &dto.ResendOTPRequest{Email: "  "})
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeMissingEmail)

	err = f.svc.ResendOTP(ctx, &dto.ResendOTPRequest{Email: "ghost@example.com"})
	requireAppError(t, err, http.StatusNotFound, apperror.CodeUserNotFound)

	_, err = f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)
	first := f.mailer.lastOTP("ada@example.com")

	require.NoError(t, f.svc.ResendOTP(ctx, &dto.ResendOTPRequest{Email: "ada@example.com"}))
	latest := f.mailer.lastOTP("ada@example.com")
	// two random codes can collide; reissue until they differ
	for i := 0; i < 3 && latest == first; i++ {
		require.NoError(t, f.svc.ResendOTP(ctx, &dto.ResendOTPRequest{Email: "ada@example.com"}))
		latest = f.mailer.lastOTP("ada@example.com")
	}
	require.NotEqual(t, first, latest)

	stored, err := f.mr.Get("otp:ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, latest, stored, "resend overwrites the pending code")
	assert.Equal(t, ResendOTPTTL, f.mr.TTL("otp:ada@example.com"))

	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: first})
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeInvalidOTP)
	assert.True(t, f.mr.Exists("otp:ada@example.com"), "a rejected code leaves the live one in place")

	_, err = f.svc.VerifyOTP(ctx, &dto.VerifyOTPRequest{Email: "ada@example.com", Otp: latest})
	require.NoError(t, err)

	err = f.svc.ResendOTP(ctx, &dto.ResendOTPRequest{Email: "ada@example.com"})
	requireAppError(t, err, http.StatusBadRequest, apperror.CodeAlreadyVerified)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	requireAppError(t, err, http.StatusNotFound, apperror.CodeUserNotFound)

	_, err = f.svc.Signup(ctx, signupRequest("ada@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	requireAppError(t, err, http.StatusForbidden, apperror.CodeEmailNotVerified)

	_, err = f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: "Wr0ng!Pass"})
	requireAppError(t, err, http.StatusUnauthorized, apperror.CodeInvalidCredentials)
}

func TestLogin_IssuesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupAndVerify(t, "ada@example.com")

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.User.Email)

	sub, err := f.tokens.VerifyAccess(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.Id, sub)

	stored, err := f.mr.Get("refresh:" + session.User.Id)
	require.NoError(t, err)
	assert.Equal(t, session.RefreshToken, stored)
}

func TestLogin_RateLimited(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupAndVerify(t, "ada@example.com")

	for i := 0; i < ratelimit.Login.Limit; i++ {
		_, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: "Wr0ng!Pass"})
		requireAppError(t, err, http.StatusUnauthorized, apperror.CodeInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	requireAppError(t, err, http.StatusTooManyRequests, apperror.CodeRateLimited)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupAndVerify(t, "ada@example.com")

	_, err := f.svc.Refresh(ctx, "")
	requireAppError(t, err, http.StatusUnauthorized, apperror.CodeMissingRefreshToken)

	_, err = f.svc.Refresh(ctx, "garbage")
	requireAppError(t, err, http.StatusUnauthorized, apperror.CodeInvalidRefreshToken)

	first, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)

	access, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	_, err = f.tokens.VerifyAccess(access)
	require.NoError(t, err)

	second, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	requireAppError(t, err, http.StatusUnauthorized, apperror.CodeRefreshTokenRevoked)

	f.svc.Logout(ctx, second.AccessToken, "")
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	requireAppError(t, err, http.StatusUnauthorized, apperror.CodeRefreshTokenRevoked)
}

func TestLogout_WithoutCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupAndVerify(t, "ada@example.com")

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)

	f.svc.Logout(ctx, "", "")
	f.svc.Logout(ctx, "garbage", "garbage")
	assert.True(t, f.mr.Exists("refresh:"+session.User.Id), "unidentified logout must not revoke anyone")
}

func TestLogout_FallsBackToRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupAndVerify(t, "ada@example.com")

	session, err := f.svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)

	f.svc.Logout(ctx, "", session.RefreshToken)
	assert.False(t, f.mr.Exists("refresh:"+session.User.Id))
}

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Str0ng!Pass", true},
		{`Ab1"efgh`, true},
		{"Ab1<efgh", true},
		{"Ab1_efgh", false}, // underscore is not in the accepted set
		{"Ab1!efg", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStrongPassword(tt.password))
		})
	}
}

func TestGenerateUserID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := generateUserID()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Za-z0-9]{12}$`, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
