package auth

import (
	"errors"
	"fmt"
	"time"

	"washpos/core/store"
)

var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords alike
	// so the surface never reveals which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	// ErrInvalidToken covers expired, tampered, revoked and fingerprint-bound
	// failures uniformly.
	ErrInvalidToken  = errors.New("invalid token")
	ErrSetupComplete = errors.New("setup already completed")
	ErrWeakPassword  = errors.New("password does not meet requirements")
	ErrInvalidInput  = errors.New("invalid input")
)

// LockedError carries the lock expiry so the boundary can report remaining
// time. It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

func (e *LockedError) RemainingMinutes(now time.Time) int {
	left := e.Until.Sub(now)
	if left <= 0 {
		return 0
	}
	mins := int(left / time.Minute)
	if left%time.Minute > 0 {
		mins++
	}
	return mins
}

// PublicUser is the account shape returned to clients. Never carries the
// password hash or raw session/device internals.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

func publicUser(acc *store.Account) PublicUser {
	return PublicUser{
		ID:       acc.ID,
		Username: acc.Username,
		Email:    acc.Email,
		Role:     acc.Role,
	}
}

// LoginResult is returned by Login and Setup.
type LoginResult struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

// RequestMeta is the per-request provenance the service stamps into sessions,
// devices and audit entries.
type RequestMeta struct {
	Fingerprint string
	IP          string
	UserAgent   string
}

// Profile is the /auth/profile payload.
type Profile struct {
	User           PublicUser `json:"user"`
	ActiveSessions int        `json:"active_sessions"`
	ActiveDevices  int        `json:"active_devices"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// Audit action tags.
const (
	ActionSetup               = "setup"
	ActionLoginSuccess        = "login_success"
	ActionLoginFailed         = "login_failed"
	ActionAccountLocked       = "account_locked"
	ActionLogout              = "logout"
	ActionPasswordChanged     = "password_changed"
	ActionSessionRevoked      = "session_revoked"
	ActionDeviceRegistered    = "device_registered"
	ActionFingerprintMismatch = "fingerprint_mismatch"
	ActionAccountCreated      = "account_created"
	ActionAccountActivated    = "account_activated"
	ActionAccountDeactivated  = "account_deactivated"
)
