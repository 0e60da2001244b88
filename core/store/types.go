package store

import "time"

const (
	// Per-account caps, enforced at write time inside transactions.
	MaxDevices        = 5
	MaxActiveSessions = 3
	AuditKeep         = 100
)

type Account struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	Role              string     `json:"role"`
	PasswordHash      string     `json:"-"`
	Salt              string     `json:"-"`
	Active            bool       `json:"active"`
	FailedAttempts    int        `json:"failed_attempts"`
	LastFailedAt      *time.Time `json:"last_failed_at,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type SessionRecord struct {
	ID           string     `json:"id"`
	AccountID    int64      `json:"account_id"`
	Fingerprint  string     `json:"-"`
	IP           string     `json:"ip"`
	UserAgent    string     `json:"user_agent"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	Active       bool       `json:"active"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"-"`
}

type DeviceRecord struct {
	ID          string    `json:"id"`
	AccountID   int64     `json:"account_id"`
	Fingerprint string    `json:"-"`
	DeviceInfo  string    `json:"device_info"`
	LastUsed    time.Time `json:"last_used"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuditRecord struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
