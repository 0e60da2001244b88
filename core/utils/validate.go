package utils

import (
	"errors"
	"regexp"
	"strings"
)

var (
	usernameRe        = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,50}$`)
	emailRe           = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	passwordMinLength = 8
	passwordMaxLength = 128
)

func ValidateUsername(s string) error {
	if !usernameRe.MatchString(s) {
		return errors.New("username must be 3-50 characters (letters, digits, . _ -)")
	}
	return nil
}

// ValidateEmail accepts an empty string; email is optional on accounts.
func ValidateEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !emailRe.MatchString(s) {
		return errors.New("invalid email address")
	}
	return nil
}

func ValidatePassword(s string) error {
	if len(s) < passwordMinLength {
		return errors.New("password too short (min 8 chars)")
	}
	if len(s) > passwordMaxLength {
		return errors.New("password too long (max 128 chars)")
	}
	return nil
}
