// api/models/auth_models.go
package models

import "github.com/golang-jwt/jwt/v5"

// --- Signup ---

// SignupRequest defines the body of POST /signup/request_otp
type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Mobile   string `json:"mobile" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyOTPRequest defines the body of POST /signup/verify_otp
type VerifyOTPRequest struct {
	OTPCode string `json:"otp_code" binding:"required"`
}

// --- Login ---

// LoginRequest accepts an email or mobile number as username, as JSON or form data
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// TokenResponse is returned by login and signup verification
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	Tables      []string `json:"tables"`
	Email       string   `json:"email"`
}

// --- Password reset ---

// ForgotPasswordRequest defines the body of POST /forgot/request_otp
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest defines the body of POST /forgot/verify_otp
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// MessageResponse is the generic success body
type MessageResponse struct {
	Message string `json:"message"`
}

// PreloadStatusResponse reports the latest login preload job
type PreloadStatusResponse struct {
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Tables     []string `json:"tables"`
	StartedAt  string   `json:"started_at,omitempty"`
	FinishedAt string   `json:"finished_at,omitempty"`
}

// --- JWT Claims ---

// CustomClaims includes standard claims and our custom userID and email claims for JWT
type CustomClaims struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
