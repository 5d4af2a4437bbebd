package apperror

// Machine-readable error codes returned in the "error_code" field.
const (
	CodeInternal     = "internal_error"
	CodeValidation   = "validation_failed"
	CodeRateLimited  = "rate_limited"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeBodyTooLarge = "request_too_large"

	// signup / OTP
	CodePasswordMismatch    = "password_mismatch"
	CodeWeakPassword        = "weak_password"
	CodeUserExists          = "user_exists"
	CodeEmailDeliveryFailed = "email_delivery_failed"
	CodeMissingEmail        = "missing_email"
	CodeAlreadyVerified     = "already_verified"
	CodeInvalidOTP          = "invalid_otp"

	// login / session
	CodeUserNotFound        = "user_not_found"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeEmailNotVerified    = "email_not_verified"
	CodeMissingRefreshToken = "missing_refresh_token"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeRefreshTokenRevoked = "refresh_token_revoked"
	CodeOAuthFailed         = "oauth_failed"
	CodeUnknownProvider     = "unknown_provider"

	// review
	CodeEmptyCode            = "empty_code"
	CodeUnsupportedFileType  = "unsupported_file_type"
	CodeInvalidEncoding      = "invalid_encoding"
	CodeUnsupportedLanguage  = "unsupported_language"
	CodeConversationNotFound = "conversation_not_found"
)
