package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/utafrali/InboxGo/internal/domain"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
	"github.com/utafrali/InboxGo/pkg/validator"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
	minNameLength    = 2
	passwordSpecials = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// validatePassword returns WeakPassword naming the first rule violated.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.WeakPassword(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return domain.WeakPassword(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, ch):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return domain.WeakPassword("password must contain an uppercase letter")
	case !hasLower:
		return domain.WeakPassword("password must contain a lowercase letter")
	case !hasDigit:
		return domain.WeakPassword("password must contain a digit")
	case !hasSpecial:
		return domain.WeakPassword("password must contain one of " + passwordSpecials)
	}
	return nil
}

func validateRegistration(email, name string) error {
	if err := validator.Var(email, "required,email"); err != nil {
		return apperrors.InvalidInput("a valid email address is required")
	}
	if len([]rune(strings.TrimSpace(name))) < minNameLength {
		return apperrors.InvalidInput(fmt.Sprintf("name must be at least %d characters", minNameLength))
	}
	return nil
}
