package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"washpos/core/rbac"
	"washpos/core/store"
	"washpos/core/utils"
)

const (
	maxLoginFailures = 5
	lockoutDuration  = 30 * time.Minute

	defaultSessionIdleTTL = 24 * time.Hour

	lockStripes = 64
)

// Service orchestrates credentials, lockout, devices, sessions and audit.
type Service struct {
	accounts store.AccountsStore
	sessions store.SessionsStore
	devices  store.DevicesStore
	auditLog store.AuditStore
	recorder *Recorder
	tokens   *TokenManager
	logger   *utils.Logger
	pepper   string
	idleTTL  time.Duration

	// Per-account mutation serialization. sqlite has no row locks and the
	// postgres path still benefits from fewer conflicting transactions.
	locks [lockStripes]sync.Mutex
	// Setup races against itself across accounts, so it gets its own lock.
	setupMu sync.Mutex
}

func NewService(
	accounts store.AccountsStore,
	sessions store.SessionsStore,
	devices store.DevicesStore,
	auditLog store.AuditStore,
	recorder *Recorder,
	tokens *TokenManager,
	logger *utils.Logger,
	pepper string,
	sessionTTL time.Duration,
) *Service {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionIdleTTL
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		devices:  devices,
		auditLog: auditLog,
		recorder: recorder,
		tokens:   tokens,
		logger:   logger,
		pepper:   pepper,
		idleTTL:  sessionTTL,
	}
}

func (s *Service) accountLock(id int64) *sync.Mutex {
	return &s.locks[uint64(id)%lockStripes]
}

func (s *Service) audit(accountID int64, action string, meta RequestMeta, details string) {
	s.recorder.Record(store.AuditRecord{
		AccountID: accountID,
		Action:    action,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   details,
	})
}

// SetupRequired reports whether first-run bootstrap is still open.
func (s *Service) SetupRequired(ctx context.Context) (bool, int, error) {
	n, err := s.accounts.CountActive(ctx)
	if err != nil {
		return false, 0, err
	}
	return n == 0, n, nil
}

// Setup creates the first admin account and performs an implicit login.
// Permitted only while zero active accounts exist.
func (s *Service) Setup(ctx context.Context, username, password, email string, meta RequestMeta) (*LoginResult, error) {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	n, err := s.accounts.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrSetupComplete
	}

	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if err := utils.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hashed, err := HashPassword(password, s.pepper)
	if err != nil {
		return nil, err
	}
	acc := &store.Account{
		Username:     username,
		Email:        email,
		Role:         rbac.RoleAdmin,
		PasswordHash: hashed.Hash,
		Salt:         hashed.Salt,
		Active:       true,
	}
	if _, err := s.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	s.audit(acc.ID, ActionSetup, meta, "initial admin account created")

	return s.openSession(ctx, acc, meta)
}

// Login runs the per-attempt state machine: lookup, lockout check, password
// check, advisory device check, session creation, token issue.
func (s *Service) Login(ctx context.Context, identifier, password string, meta RequestMeta) (*LoginResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acc, err := s.accounts.FindByLogin(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		// Unknown account reads the same as a wrong password.
		return nil, ErrInvalidCredentials
	}

	mu := s.accountLock(acc.ID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	if acc.LockedUntil != nil && now.Before(*acc.LockedUntil) {
		return nil, &LockedError{Until: *acc.LockedUntil}
	}

	stored, err := ParsePasswordHash(acc.PasswordHash, acc.Salt)
	if err != nil {
		return nil, err
	}
	ok, err := VerifyPassword(password, s.pepper, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The failure is committed regardless of what the caller does next.
		count, lockedUntil, ferr := s.accounts.RecordFailure(ctx, acc.ID, now, maxLoginFailures, lockoutDuration)
		if ferr != nil {
			return nil, ferr
		}
		s.audit(acc.ID, ActionLoginFailed, meta, fmt.Sprintf("failed attempt %d", count))
		if lockedUntil != nil {
			s.audit(acc.ID, ActionAccountLocked, meta, "")
			return nil, &LockedError{Until: *lockedUntil}
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.accounts.RecordSuccess(ctx, acc.ID, now); err != nil {
		return nil, err
	}
	return s.openSession(ctx, acc, meta)
}

// openSession is the shared tail of Login and Setup: advisory device
// registration, session creation, audit, token issue.
func (s *Service) openSession(ctx context.Context, acc *store.Account, meta RequestMeta) (*LoginResult, error) {
	if meta.Fingerprint != "" {
		known, err := s.devices.IsAuthorized(ctx, acc.ID, meta.Fingerprint)
		if err == nil && !known {
			if _, err := s.devices.Register(ctx, acc.ID, meta.Fingerprint, meta.UserAgent); err != nil {
				// Advisory only. Never blocks the login.
				if s.logger != nil {
					s.logger.Errorf("device registration failed (account=%d): %v", acc.ID, err)
				}
			} else {
				s.audit(acc.ID, ActionDeviceRegistered, meta, "new device fingerprint")
			}
		} else if err == nil && known {
			if err := s.devices.Touch(ctx, acc.ID, meta.Fingerprint, time.Now().UTC()); err != nil && s.logger != nil {
				s.logger.Errorf("device touch failed (account=%d): %v", acc.ID, err)
			}
		}
	}

	sess, err := s.sessions.Create(ctx, acc.ID, meta.Fingerprint, meta.IP, meta.UserAgent)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(acc.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	s.audit(acc.ID, ActionLoginSuccess, meta, "")
	return &LoginResult{Token: token, User: publicUser(acc)}, nil
}

// Verify decodes the token, loads the account and validates the embedded
// session against the presented fingerprint. Every failure collapses to
// ErrInvalidToken.
func (s *Service) Verify(ctx context.Context, tokenString string, meta RequestMeta) (*store.Account, *TokenClaims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	acc, err := s.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil || !acc.Active {
		return nil, nil, ErrInvalidToken
	}
	if err := s.validateSession(ctx, acc.ID, claims.SessionID, meta); err != nil {
		return nil, nil, err
	}
	return acc, claims, nil
}

// validateSession enforces the session invariants: active, idle under the
// configured TTL, and fingerprint identical to the one bound at creation. A
// failed check deactivates the session on the spot.
func (s *Service) validateSession(ctx context.Context, accountID int64, sessionID string, meta RequestMeta) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.AccountID != accountID || !sess.Active {
		return ErrInvalidToken
	}
	now := time.Now().UTC()
	if now.Sub(sess.LastActivity) > s.idleTTL {
		if err := s.sessions.Deactivate(ctx, sess.ID, "expired", now); err != nil && err != store.ErrNotFound {
			return err
		}
		return ErrInvalidToken
	}
	if sess.Fingerprint != meta.Fingerprint {
		if err := s.sessions.Deactivate(ctx, sess.ID, "fingerprint_mismatch", now); err != nil && err != store.ErrNotFound {
			return err
		}
		s.audit(accountID, ActionFingerprintMismatch, meta, "session killed on fingerprint mismatch")
		return ErrInvalidToken
	}
	return s.sessions.Touch(ctx, sess.ID, now)
}

// Logout revokes the token's session. Idempotent: an already-invalid token is
// still a successful logout from the caller's point of view.
func (s *Service) Logout(ctx context.Context, tokenString string, meta RequestMeta) error {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil
	}
	mu := s.accountLock(claims.AccountID)
	mu.Lock()
	defer mu.Unlock()

	err = s.sessions.Deactivate(ctx, claims.SessionID, "logout", time.Now().UTC())
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if err == nil {
		s.audit(claims.AccountID, ActionLogout, meta, "")
	}
	return nil
}

// ChangePassword re-verifies the current password before updating. Other
// active sessions stay alive.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword string, meta RequestMeta) error {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acc == nil || !acc.Active {
		return ErrInvalidToken
	}
	stored, err := ParsePasswordHash(acc.PasswordHash, acc.Salt)
	if err != nil {
		return err
	}
	ok, err := VerifyPassword(currentPassword, s.pepper, stored)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	hashed, err := HashPassword(newPassword, s.pepper)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hashed.Hash, hashed.Salt); err != nil {
		return err
	}
	s.audit(accountID, ActionPasswordChanged, meta, "")
	return nil
}

// Profile returns the public account fields plus derived counts.
func (s *Service) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, store.ErrNotFound
	}
	nSessions, err := s.sessions.CountActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	nDevices, err := s.devices.CountActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:           publicUser(acc),
		ActiveSessions: nSessions,
		ActiveDevices:  nDevices,
		LastLoginAt:    acc.LastLoginAt,
	}, nil
}

// Sessions lists the caller's own active sessions.
func (s *Service) Sessions(ctx context.Context, accountID int64) ([]store.SessionRecord, error) {
	return s.sessions.ListActive(ctx, accountID)
}

// RevokeSession kills one of the caller's own sessions.
func (s *Service) RevokeSession(ctx context.Context, accountID int64, sessionID string, meta RequestMeta) error {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.AccountID != accountID {
		return store.ErrNotFound
	}
	if err := s.sessions.Deactivate(ctx, sessionID, "revoked", time.Now().UTC()); err != nil {
		return err
	}
	s.audit(accountID, ActionSessionRevoked, meta, "revoked by owner")
	return nil
}

// Devices lists the caller's recognized devices.
func (s *Service) Devices(ctx context.Context, accountID int64) ([]store.DeviceRecord, error) {
	return s.devices.ListActive(ctx, accountID)
}

// AuditTrail returns the caller's most recent audit entries, newest first.
func (s *Service) AuditTrail(ctx context.Context, accountID int64, limit int) ([]store.AuditRecord, error) {
	s.recorder.Flush()
	return s.auditLog.ListRecent(ctx, accountID, limit)
}

// CreateAccount is the administrative path for adding staff accounts.
func (s *Service) CreateAccount(ctx context.Context, adminID int64, username, password, email, role string, meta RequestMeta) (*PublicUser, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if role == "" {
		role = rbac.RoleOperator
	}
	if !rbac.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := utils.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	hashed, err := HashPassword(password, s.pepper)
	if err != nil {
		return nil, err
	}
	acc := &store.Account{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hashed.Hash,
		Salt:         hashed.Salt,
		Active:       true,
	}
	if _, err := s.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	s.audit(adminID, ActionAccountCreated, meta, fmt.Sprintf("account %s (%s)", username, role))
	u := publicUser(acc)
	return &u, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]store.Account, error) {
	return s.accounts.List(ctx)
}

// SetAccountActive toggles the soft-delete flag. Deactivation also revokes
// the account's active sessions so the token stops working immediately.
func (s *Service) SetAccountActive(ctx context.Context, adminID, accountID int64, active bool, meta RequestMeta) error {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.accounts.SetActive(ctx, accountID, active); err != nil {
		return err
	}
	action := ActionAccountActivated
	if !active {
		action = ActionAccountDeactivated
		now := time.Now().UTC()
		sessions, err := s.sessions.ListActive(ctx, accountID)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			if err := s.sessions.Deactivate(ctx, sess.ID, "account_deactivated", now); err != nil && err != store.ErrNotFound {
				return err
			}
		}
	}
	s.audit(adminID, action, meta, fmt.Sprintf("account %d", accountID))
	return nil
}

// Flush drains pending audit writes. Tests and shutdown only.
func (s *Service) Flush() {
	s.recorder.Flush()
}
