package dto

import "time"

type SignupRequest struct {
	FirstName       string `json:"first_name" validate:"required,max=255"`
	LastName        string `json:"last_name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=320"`
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Otp   string `json:"otp" validate:"required,len=6,numeric"`
}

// ResendOTPRequest leaves email unvalidated so a missing value maps to
// the dedicated missing_email error.
type ResendOTPRequest struct {
	Email string `json:"email"`
}

type UserResponse struct {
	Id        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

type SignupResponse struct {
	Email string `json:"email"`
}

// Session carries freshly issued tokens from a login to the transport
// layer. Tokens only ever leave the server as cookies.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserResponse
}
