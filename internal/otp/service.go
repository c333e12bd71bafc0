// internal/otp/service.go
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Annany2002/dataspace-backend/internal/auth"
	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/domain"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/mailer"
	"github.com/Annany2002/dataspace-backend/internal/metrics"
	"github.com/Annany2002/dataspace-backend/internal/ratelimit"
	"github.com/Annany2002/dataspace-backend/internal/storage"
	"github.com/Annany2002/dataspace-backend/internal/tenant"
)

var (
	customLog = logger.NewLogger()
)

const (
	DefaultTTL             = 5 * time.Minute
	DefaultResetMaxPerHour = 5
	resetWindow            = time.Hour
)

// Kind distinguishes signup codes from reset codes.
type Kind string

const (
	KindSignup Kind = "SIGNUP"
	KindReset  Kind = "RESET"
)

// Record is an issued passcode. Signup records carry the pending account;
// reset records carry only the target email.
type Record struct {
	Code       string
	Kind       Kind
	Email      string
	Mobile     string
	Credential string
	CreatedAt  time.Time
}

func (r *Record) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// AccountStore is the part of the account repository the gate needs.
type AccountStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	MobileExists(ctx context.Context, mobile string) (bool, error)
	CreateAccount(ctx context.Context, acct *domain.Account, provision func(ctx context.Context) error) error
	UpdatePasswordHash(ctx context.Context, email, hash string) error
}

// Provisioner creates tenant databases.
type Provisioner interface {
	Ensure(ctx context.Context, name string) error
}

// Mailer delivers passcodes.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, purpose mailer.Purpose) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	GenerateJWT(userID, email string) (string, error)
}

// Config tunes the gate. Zero values take the defaults.
type Config struct {
	TTL             time.Duration
	ResetMaxPerHour int
	Now             func() time.Time
	Hash            func(string) (string, error)
}

// Service issues and verifies passcodes for signup and password reset.
type Service struct {
	accounts AccountStore
	prov     Provisioner
	mail     Mailer
	tokens   TokenIssuer

	ttl  time.Duration
	now  func() time.Time
	hash func(string) (string, error)

	mu      sync.Mutex
	signups map[string]*Record // by code
	resets  map[string]*Record // by email
	window  *ratelimit.Window
}

// NewService wires the gate to its collaborators.
func NewService(accounts AccountStore, prov Provisioner, mail Mailer, tokens TokenIssuer, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ResetMaxPerHour <= 0 {
		cfg.ResetMaxPerHour = DefaultResetMaxPerHour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hash == nil {
		cfg.Hash = auth.HashPassword
	}
	return &Service{
		accounts: accounts,
		prov:     prov,
		mail:     mail,
		tokens:   tokens,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		hash:     cfg.Hash,
		signups:  make(map[string]*Record),
		resets:   make(map[string]*Record),
		window:   ratelimit.NewWindow(cfg.ResetMaxPerHour, resetWindow).WithClock(cfg.Now),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode returns a random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// --- Signup ---

// RequestSignup validates the pending account, issues a signup code and mails it.
func (s *Service) RequestSignup(ctx context.Context, email, mobile, credential string) (*Record, error) {
	email = normalizeEmail(email)
	mobile = strings.TrimSpace(mobile)

	if !core.IsValidEmail(email) {
		return nil, errs.Validation("INVALID_EMAIL", "Invalid email format.")
	}
	if !core.IsValidMobile(mobile) {
		return nil, errs.Validation("INVALID_MOBILE", "Invalid mobile number. Must be 10 digits starting with 6-9.")
	}
	if !core.CheckPasswordComplexity(credential) {
		return nil, errs.Validation("WEAK_PASSWORD", "Password must be 8-64 characters and include uppercase, lowercase, digit, and special character.")
	}

	if taken, err := s.accounts.EmailExists(ctx, email); err != nil {
		return nil, errs.Internal("SIGNUP_ERROR", "Signup failed", err)
	} else if taken {
		return nil, errs.Conflict("EMAIL_EXISTS", "Email already exists.")
	}
	if taken, err := s.accounts.MobileExists(ctx, mobile); err != nil {
		return nil, errs.Internal("SIGNUP_ERROR", "Signup failed", err)
	} else if taken {
		return nil, errs.Conflict("MOBILE_EXISTS", "Mobile number already exists.")
	}

	rec, err := s.issueSignup(email, mobile, credential)
	if err != nil {
		return nil, err
	}

	if err := s.mail.SendOTP(ctx, email, rec.Code, mailer.PurposeSignup); err != nil {
		s.mu.Lock()
		delete(s.signups, rec.Code)
		s.mu.Unlock()
		metrics.ObserveOTP("signup", "send_failed")
		return nil, errs.Internal("EMAIL_SEND_FAILED", "Failed to send OTP", err)
	}

	customLog.Printf("OTP: signup code issued for %s", email)
	metrics.ObserveOTP("signup", "issued")
	return rec, nil
}

// issueSignup stores a fresh record unless an unexpired pending signup
// already holds the email or mobile.
func (s *Service) issueSignup(email, mobile, credential string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for code, pending := range s.signups {
		if pending.expired(now, s.ttl) {
			delete(s.signups, code)
			continue
		}
		if pending.Email == email {
			return nil, errs.Conflict("EMAIL_EXISTS", "A signup for this email is already pending verification.")
		}
		if pending.Mobile == mobile {
			return nil, errs.Conflict("MOBILE_EXISTS", "A signup for this mobile number is already pending verification.")
		}
	}

	var code string
	for {
		c, err := generateCode()
		if err != nil {
			return nil, errs.Internal("OTP_GENERATION_FAILED", "Failed to generate OTP", err)
		}
		if _, clash := s.signups[c]; !clash {
			code = c
			break
		}
	}

	rec := &Record{
		Code:       code,
		Kind:       KindSignup,
		Email:      email,
		Mobile:     mobile,
		Credential: credential,
		CreatedAt:  now,
	}
	s.signups[code] = rec
	return rec, nil
}

// takeSignup removes and returns the record for code. The record is spent
// whether or not it has expired.
func (s *Service) takeSignup(code string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.signups[code]
	if !ok {
		return nil, errs.NotFound("INVALID_OTP", "Invalid or expired OTP.")
	}
	delete(s.signups, code)
	if rec.expired(s.now(), s.ttl) {
		return nil, errs.Expired("OTP_EXPIRED", "OTP expired. Please request a new one.")
	}
	return rec, nil
}

// VerifySignup spends the code, creates the account together with its tenant
// database and returns the account with a session token.
func (s *Service) VerifySignup(ctx context.Context, code string) (*domain.Account, string, error) {
	code = strings.TrimSpace(code)
	if !core.IsValidOTPFormat(code) {
		return nil, "", errs.Validation("INVALID_OTP_FORMAT", "OTP must be numeric, 4 to 6 digits.")
	}

	rec, err := s.takeSignup(code)
	if err != nil {
		metrics.ObserveOTP("signup", "rejected")
		return nil, "", err
	}

	acct, token, err := s.activate(ctx, rec)
	if err != nil {
		customLog.Errorf("OTP: activation failed for %s: %v", rec.Email, err)
		metrics.ObserveOTP("signup", "provisioning_failed")
		return nil, "", errs.Provisioning("Signup failed. Please request a new OTP and try again.", err)
	}

	customLog.Printf("OTP: user '%s' signed up, tenant database '%s'", acct.Email, acct.TenantDB)
	metrics.ObserveOTP("signup", "verified")
	return acct, token, nil
}

func (s *Service) activate(ctx context.Context, rec *Record) (*domain.Account, string, error) {
	tenantDB := tenant.NameFor(rec.Email)

	hash, err := s.hash(rec.Credential)
	if err != nil {
		return nil, "", err
	}

	acct := &domain.Account{
		UserID:       uuid.NewString(),
		Email:        rec.Email,
		Mobile:       rec.Mobile,
		Username:     domain.UsernameFromEmail(rec.Email),
		PasswordHash: hash,
		TenantDB:     tenantDB,
		CreatedAt:    s.now().UTC(),
	}

	err = s.accounts.CreateAccount(ctx, acct, func(ctx context.Context) error {
		return s.prov.Ensure(ctx, tenantDB)
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateJWT(acct.UserID, acct.Email)
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// --- Password reset ---

// RequestReset issues a reset code for a registered email, replacing any
// earlier one, subject to the hourly request cap.
func (s *Service) RequestReset(ctx context.Context, email string) (*Record, error) {
	email = normalizeEmail(email)
	if !core.IsValidEmail(email) {
		return nil, errs.Validation("INVALID_EMAIL", "Invalid email format.")
	}

	registered, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		return nil, errs.Internal("RESET_ERROR", "Password reset failed", err)
	}
	if !registered {
		return nil, errs.NotFound("EMAIL_NOT_REGISTERED", "Email not found.")
	}

	if !s.window.Allow(email) {
		metrics.ObserveOTP("reset", "rate_limited")
		return nil, errs.RateLimited("RESET_OTP_LIMIT", "Too many OTP requests. Try again later.")
	}

	code, err := generateCode()
	if err != nil {
		return nil, errs.Internal("OTP_GENERATION_FAILED", "Failed to generate OTP", err)
	}
	rec := &Record{Code: code, Kind: KindReset, Email: email, CreatedAt: s.now()}

	s.mu.Lock()
	s.resets[email] = rec
	s.mu.Unlock()

	if err := s.mail.SendOTP(ctx, email, code, mailer.PurposeReset); err != nil {
		s.mu.Lock()
		if cur, ok := s.resets[email]; ok && cur == rec {
			delete(s.resets, email)
		}
		s.mu.Unlock()
		metrics.ObserveOTP("reset", "send_failed")
		return nil, errs.Internal("EMAIL_SEND_FAILED", "Failed to send OTP", err)
	}

	customLog.Printf("OTP: reset code issued for %s", email)
	metrics.ObserveOTP("reset", "issued")
	return rec, nil
}

// takeReset checks code against the record for email and evicts it on
// success or expiry. A mismatch or weak credential leaves the record in place.
func (s *Service) takeReset(email, code, newCredential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resets[email]
	if !ok {
		return errs.NotFound("OTP_MISSING", "OTP not requested or expired.")
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return errs.Mismatch("INVALID_OTP", "Invalid OTP.")
	}
	if rec.expired(s.now(), s.ttl) {
		delete(s.resets, email)
		return errs.Expired("OTP_EXPIRED", "OTP expired.")
	}
	if !core.CheckPasswordComplexity(newCredential) {
		return errs.Validation("WEAK_PASSWORD", "Password must be 8-64 characters and include uppercase, lowercase, digit, and special character.")
	}
	delete(s.resets, email)
	return nil
}

// VerifyReset spends a reset code and overwrites the stored credential hash.
func (s *Service) VerifyReset(ctx context.Context, email, code, newCredential string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	if err := s.takeReset(email, code, newCredential); err != nil {
		metrics.ObserveOTP("reset", "rejected")
		return err
	}

	hash, err := s.hash(newCredential)
	if err != nil {
		return errs.Internal("RESET_ERROR", "Password reset failed", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, email, hash); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return errs.NotFound("USER_NOT_FOUND", "User not found.")
		}
		return errs.Internal("RESET_ERROR", "Password reset failed", err)
	}

	customLog.Printf("OTP: password reset successful for %s", email)
	metrics.ObserveOTP("reset", "verified")
	return nil
}

// --- Expiry ---

// Sweep drops expired records and empty reset windows. It returns the number
// of records removed.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for code, rec := range s.signups {
		if rec.expired(now, s.ttl) {
			delete(s.signups, code)
			removed++
		}
	}
	for email, rec := range s.resets {
		if rec.expired(now, s.ttl) {
			delete(s.resets, email)
			removed++
		}
	}
	s.mu.Unlock()

	s.window.Sweep()
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				customLog.Printf("OTP: swept %d expired codes", n)
			}
		}
	}
}

// Pending returns the number of live signup and reset records.
func (s *Service) Pending() (signups, resets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signups), len(s.resets)
}
