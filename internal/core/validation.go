// internal/core/validation.go
package core

import (
	"regexp"
	"strings"
)

// Regular expressions shared by the signup, login and reset flows
var (
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	mobileRegex = regexp.MustCompile(`^[6-9]\d{9}$`)
	otpRegex    = regexp.MustCompile(`^\d{4,6}$`)

	// Unquoted SQL identifier part (used for Vertica/PostgreSQL "schema.table" names)
	identifierPartRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
)

// PasswordSpecialChars is the fixed set of accepted special characters.
const PasswordSpecialChars = "@$!%*#?&"

const (
	MinPasswordLength = 8
	MaxPasswordLength = 64
	MaxIdentifierLen  = 128
)

// IsValidEmail checks the email format.
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// IsValidMobile checks for a 10-digit mobile number starting with 6-9.
func IsValidMobile(mobile string) bool {
	return mobileRegex.MatchString(mobile)
}

// IsValidOTPFormat checks a passcode is 4-6 digits.
func IsValidOTPFormat(code string) bool {
	return otpRegex.MatchString(code)
}

// CheckPasswordComplexity reports whether the password has the required length
// and at least one upper, lower, digit and special character.
func CheckPasswordComplexity(password string) bool {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSpecial
}

// IsValidQualifiedIdentifier checks an unquoted identifier, optionally
// schema-qualified ("schema.table"). Every part must be a plain SQL identifier.
func IsValidQualifiedIdentifier(name string) bool {
	if name == "" || len(name) > MaxIdentifierLen {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if !identifierPartRegex.MatchString(part) {
			return false
		}
	}
	return true
}

// IsValidTableName checks a name that will be quoted by the dialect
// (MySQL backticks). Only control characters and empty names are rejected.
func IsValidTableName(name string) bool {
	if strings.TrimSpace(name) == "" || len(name) > MaxIdentifierLen {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// NormalizeColumnLabel trims, lower-cases and replaces spaces with underscores.
func NormalizeColumnLabel(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
