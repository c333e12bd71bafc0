// api/handlers/auth_handler.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/dataspace-backend/api/models"
	"github.com/Annany2002/dataspace-backend/internal/auth" // Import internal auth logic
	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/domain"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/otp"
	"github.com/Annany2002/dataspace-backend/internal/session"
	"github.com/Annany2002/dataspace-backend/internal/storage" // Import storage errors
)

// AccountFinder resolves a login identifier to an account.
type AccountFinder interface {
	FindByLogin(ctx context.Context, login string) (*domain.Account, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	GenerateJWT(userID, email string) (string, error)
}

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	OTP      *otp.Service
	Accounts AccountFinder
	Tokens   TokenIssuer
	Sessions *session.Store
	Tenants  *TenantAccess
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(gate *otp.Service, accounts AccountFinder, tokens TokenIssuer, sessions *session.Store, tenants *TenantAccess) *AuthHandler {
	return &AuthHandler{
		OTP:      gate,
		Accounts: accounts,
		Tokens:   tokens,
		Sessions: sessions,
		Tenants:  tenants,
	}
}

// SignupRequestOTP validates a signup and mails a passcode.
func (h *AuthHandler) SignupRequestOTP(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "Signup", err)
		return
	}

	if _, err := h.OTP.RequestSignup(c.Request.Context(), req.Email, req.Mobile, req.Password); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "OTP sent to email. Please verify to complete signup."})
}

// SignupVerifyOTP activates the pending account and returns a token.
func (h *AuthHandler) SignupVerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "Signup verify", err)
		return
	}

	acct, token, err := h.OTP.VerifySignup(c.Request.Context(), req.OTPCode)
	if err != nil {
		// Unknown and malformed codes are both an invalid OTP to the caller.
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
			err = errs.WithStatus(err, http.StatusBadRequest)
		}
		_ = c.Error(err)
		return
	}

	customLog.Printf("Signup completed for %s, tenant database %s", acct.Email, acct.TenantDB)
	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer", Tables: []string{}, Email: acct.Email})
}

// Login checks credentials, issues a token and starts preloading the
// account's tables in the background. Accepts JSON or form data.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, "Login", err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if strings.Contains(username, "@") {
		if !core.IsValidEmail(username) {
			_ = c.Error(errs.Validation("INVALID_EMAIL", "Invalid email format."))
			return
		}
	} else if !core.IsValidMobile(username) {
		_ = c.Error(errs.Validation("INVALID_MOBILE", "Invalid mobile number format."))
		return
	}

	acct, err := h.Accounts.FindByLogin(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			customLog.Warnf("Login failed for %s: no such account", username)
			_ = c.Error(errs.Unauthorized("USER_NOT_FOUND", "Invalid credentials."))
			return
		}
		_ = c.Error(errs.Internal("LOGIN_ERROR", "Login failed", err))
		return
	}

	if !auth.CheckPasswordHash(req.Password, acct.PasswordHash) {
		customLog.Warnf("Login attempt failed for %s: invalid password", acct.Email)
		_ = c.Error(errs.Unauthorized("INVALID_PASSWORD", "Invalid credentials."))
		return
	}

	token, err := h.Tokens.GenerateJWT(acct.UserID, acct.Email)
	if err != nil {
		_ = c.Error(errs.Internal("LOGIN_ERROR", "Login failed", err))
		return
	}

	state := h.Sessions.Get(acct.UserID)
	if acct.TenantDB == "" {
		customLog.Warnf("No tenant database for user %s, skipping preload", acct.Email)
	} else {
		h.Tenants.startPreload(state, acct.TenantDB)
	}

	customLog.Printf("User '%s' logged in.", acct.Email)
	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer", Tables: []string{}, Email: acct.Email})
}

// Logout drops the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, email, ok := currentUser(c)
	if !ok {
		return
	}
	h.Sessions.Clear(userID)
	customLog.Printf("User '%s' logged out.", email)
	c.JSON(http.StatusOK, gin.H{"detail": "Successfully logged out"})
}

// PreloadStatus reports the caller's most recent preload job.
func (h *AuthHandler) PreloadStatus(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	resp := models.PreloadStatusResponse{Status: "none", Tables: []string{}}
	if state, found := h.Sessions.Peek(userID); found {
		if job := state.Preload(); job != nil {
			snap := job.Snapshot()
			resp.Status = string(snap.Status)
			resp.Tables = append(resp.Tables, snap.Tables...)
			resp.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339)
			if !snap.FinishedAt.IsZero() {
				resp.FinishedAt = snap.FinishedAt.UTC().Format(time.RFC3339)
			}
			if snap.Err != nil {
				resp.Error = "Preloading tables failed."
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ForgotRequestOTP mails a password reset passcode.
func (h *AuthHandler) ForgotRequestOTP(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "Forgot password", err)
		return
	}

	if _, err := h.OTP.RequestReset(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "OTP sent to your email."})
}

// ForgotVerifyOTP spends a reset passcode and stores the new password.
func (h *AuthHandler) ForgotVerifyOTP(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "Reset password", err)
		return
	}

	if err := h.OTP.VerifyReset(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		// A missing code is a bad request; a missing account stays 404.
		if appErr, ok := errs.As(err); ok && appErr.Tag == "OTP_MISSING" {
			err = errs.WithStatus(err, http.StatusBadRequest)
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Password reset successfully."})
}
