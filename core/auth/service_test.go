package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"washpos/config"
	"washpos/core/store"
)

var testMeta = RequestMeta{Fingerprint: "fp-main", IP: "10.0.0.1", UserAgent: "pos-terminal"}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	return newTestServiceTTL(t, 0)
}

func newTestServiceTTL(t *testing.T, sessionTTL time.Duration) (*Service, *sql.DB) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "washpos_auth_test.db"),
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	audit := store.NewAuditStore(db)
	recorder := NewRecorder(audit, nil)
	t.Cleanup(recorder.Close)
	tokens, err := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	svc := NewService(
		store.NewAccountsStore(db),
		store.NewSessionsStore(db),
		store.NewDevicesStore(db),
		audit,
		recorder,
		tokens,
		nil,
		"test-pepper",
		sessionTTL,
	)
	return svc, db
}

func mustSetup(t *testing.T, svc *Service) *LoginResult {
	t.Helper()
	res, err := svc.Setup(context.Background(), "admin", "Passw0rd!", "", testMeta)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return res
}

func TestSetupIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	required, n, err := svc.SetupRequired(ctx)
	if err != nil || !required || n != 0 {
		t.Fatalf("SetupRequired before: required=%v n=%d err=%v", required, n, err)
	}

	res := mustSetup(t, svc)
	if res.Token == "" || res.User.Username != "admin" || res.User.Role != "admin" {
		t.Fatalf("setup result: %+v", res)
	}

	required, n, err = svc.SetupRequired(ctx)
	if err != nil || required || n != 1 {
		t.Fatalf("SetupRequired after: required=%v n=%d err=%v", required, n, err)
	}

	if _, err := svc.Setup(ctx, "admin2", "Passw0rd!", "", testMeta); !errors.Is(err, ErrSetupComplete) {
		t.Fatalf("second setup: got %v, want ErrSetupComplete", err)
	}
}

func TestLoginGenericErrorSurface(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustSetup(t, svc)

	_, errUnknown := svc.Login(ctx, "nobody", "Passw0rd!", testMeta)
	_, errWrongPw := svc.Login(ctx, "admin", "Wrong0rd!", testMeta)
	if errUnknown == nil || errWrongPw == nil {
		t.Fatal("expected both logins to fail")
	}
	// Unknown username and wrong password must be indistinguishable.
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("error surface differs: %q vs %q", errUnknown, errWrongPw)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v / %v", errUnknown, errWrongPw)
	}
}

func TestLockoutTrigger(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	mustSetup(t, svc)

	for i := 0; i < 4; i++ {
		if _, err := svc.Login(ctx, "admin", "wrongpass", testMeta); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure #%d: got %v", i+1, err)
		}
	}
	_, err := svc.Login(ctx, "admin", "wrongpass", testMeta)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("5th failure: got %v, want LockedError", err)
	}
	if mins := locked.RemainingMinutes(time.Now().UTC()); mins < 29 || mins > 30 {
		t.Fatalf("remaining minutes: %d", mins)
	}

	// Correct password while locked is still refused.
	if _, err := svc.Login(ctx, "admin", "Passw0rd!", testMeta); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("login while locked: got %v", err)
	}

	// Simulate the lock expiring.
	if _, err := db.Exec(`UPDATE accounts SET locked_until=?`, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("expire lock: %v", err)
	}
	res, err := svc.Login(ctx, "admin", "Passw0rd!", testMeta)
	if err != nil {
		t.Fatalf("login after expiry: %v", err)
	}
	if res.User.Username != "admin" {
		t.Fatalf("login result: %+v", res)
	}

	var failed int
	if err := db.QueryRow(`SELECT failed_attempts FROM accounts`).Scan(&failed); err != nil {
		t.Fatalf("query: %v", err)
	}
	if failed != 0 {
		t.Fatalf("failed_attempts after success: %d", failed)
	}
}

func TestSessionCapViaLogin(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	mustSetup(t, svc)

	for i := 0; i < 3; i++ {
		if _, err := svc.Login(ctx, "admin", "Passw0rd!", testMeta); err != nil {
			t.Fatalf("login #%d: %v", i+1, err)
		}
	}
	var active int
	if err := db.QueryRow(`SELECT COUNT(1) FROM sessions WHERE active=1`).Scan(&active); err != nil {
		t.Fatalf("query: %v", err)
	}
	if active != store.MaxActiveSessions {
		t.Fatalf("active sessions: got %d, want %d", active, store.MaxActiveSessions)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)

	acc, claims, err := svc.Verify(ctx, res.Token, testMeta)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if acc.ID != res.User.ID || acc.Username != res.User.Username || acc.Role != res.User.Role {
		t.Fatalf("verify mismatch: %+v vs %+v", acc, res.User)
	}
	if claims.AccountID != acc.ID {
		t.Fatalf("claims account: %d", claims.AccountID)
	}
}

func TestFingerprintBindingTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)

	other := testMeta
	other.Fingerprint = "fp-other"
	if _, _, err := svc.Verify(ctx, res.Token, other); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify with foreign fingerprint: got %v", err)
	}
	// The mismatch killed the session: the original fingerprint no longer works.
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify after mismatch kill: got %v", err)
	}
}

func TestSessionIdleExpiry(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)

	if _, err := db.Exec(`UPDATE sessions SET last_activity=?`, time.Now().UTC().Add(-25*time.Hour)); err != nil {
		t.Fatalf("age session: %v", err)
	}
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify on idle session: got %v", err)
	}
	var reason string
	if err := db.QueryRow(`SELECT revoke_reason FROM sessions`).Scan(&reason); err != nil {
		t.Fatalf("query: %v", err)
	}
	if reason != "expired" {
		t.Fatalf("revoke reason: %q", reason)
	}
}

func TestSessionIdleTTLConfigured(t *testing.T) {
	svc, db := newTestServiceTTL(t, time.Minute)
	ctx := context.Background()
	res := mustSetup(t, svc)

	// Well under the default 24h, but past the configured TTL.
	if _, err := db.Exec(`UPDATE sessions SET last_activity=?`, time.Now().UTC().Add(-2*time.Minute)); err != nil {
		t.Fatalf("age session: %v", err)
	}
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify past configured TTL: got %v", err)
	}
	var reason string
	if err := db.QueryRow(`SELECT revoke_reason FROM sessions`).Scan(&reason); err != nil {
		t.Fatalf("query: %v", err)
	}
	if reason != "expired" {
		t.Fatalf("revoke reason: %q", reason)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)

	if err := svc.Logout(ctx, res.Token, testMeta); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verify after logout: got %v", err)
	}
	// Logging out again, or with garbage, is still a success.
	if err := svc.Logout(ctx, res.Token, testMeta); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(ctx, "garbage-token", testMeta); err != nil {
		t.Fatalf("Logout with garbage token: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)
	id := res.User.ID

	if err := svc.ChangePassword(ctx, id, "wrongpass", "NewPassw0rd!", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, id, "Passw0rd!", "short", testMeta); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak new password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, id, "Passw0rd!", "NewPassw0rd!", testMeta); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Login(ctx, "admin", "Passw0rd!", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := svc.Login(ctx, "admin", "NewPassw0rd!", testMeta); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// The session opened before the change stays valid.
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); err != nil {
		t.Fatalf("pre-change session revoked: %v", err)
	}
}

func TestDeviceCapViaLogin(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	mustSetup(t, svc)

	for i := 0; i < store.MaxDevices+1; i++ {
		meta := testMeta
		meta.Fingerprint = "fp-" + string(rune('a'+i))
		if _, err := svc.Login(ctx, "admin", "Passw0rd!", meta); err != nil {
			t.Fatalf("login #%d: %v", i+1, err)
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(1) FROM devices WHERE active=1`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != store.MaxDevices {
		t.Fatalf("devices: got %d, want %d", n, store.MaxDevices)
	}
}

func TestAuditTrailRecords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := mustSetup(t, svc)

	if _, err := svc.Login(ctx, "admin", "wrongpass", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("failed login: %v", err)
	}
	entries, err := svc.AuditTrail(ctx, res.User.ID, 0)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Action] = true
	}
	for _, want := range []string{ActionSetup, ActionLoginSuccess, ActionLoginFailed, ActionDeviceRegistered} {
		if !seen[want] {
			t.Fatalf("missing audit action %q in %v", want, entries)
		}
	}
}

func TestRevokeOwnSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	first := mustSetup(t, svc)

	second, err := svc.Login(ctx, "admin", "Passw0rd!", testMeta)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	sessions, err := svc.Sessions(ctx, first.User.ID)
	if err != nil || len(sessions) != 2 {
		t.Fatalf("Sessions: n=%d err=%v", len(sessions), err)
	}

	claims, err := svc.tokens.Verify(second.Token)
	if err != nil {
		t.Fatalf("decode second token: %v", err)
	}
	if err := svc.RevokeSession(ctx, first.User.ID, claims.SessionID, testMeta); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, _, err := svc.Verify(ctx, second.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked session verified: %v", err)
	}
	// First session is untouched.
	if _, _, err := svc.Verify(ctx, first.Token, testMeta); err != nil {
		t.Fatalf("surviving session: %v", err)
	}

	if err := svc.RevokeSession(ctx, first.User.ID, "no-such-session", testMeta); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoke unknown session: %v", err)
	}
}

func TestAccountManagement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := mustSetup(t, svc)

	u, err := svc.CreateAccount(ctx, admin.User.ID, "cashier", "Passw0rd!", "", "operator", testMeta)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if u.Role != "operator" {
		t.Fatalf("role: %q", u.Role)
	}
	if _, err := svc.CreateAccount(ctx, admin.User.ID, "cashier", "Passw0rd!", "", "operator", testMeta); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate account: %v", err)
	}
	if _, err := svc.CreateAccount(ctx, admin.User.ID, "boss", "Passw0rd!", "", "superadmin", testMeta); err == nil {
		t.Fatal("unknown role accepted")
	}

	res, err := svc.Login(ctx, "cashier", "Passw0rd!", testMeta)
	if err != nil {
		t.Fatalf("cashier login: %v", err)
	}

	// Deactivation revokes the live session and blocks further logins.
	if err := svc.SetAccountActive(ctx, admin.User.ID, u.ID, false, testMeta); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := svc.Verify(ctx, res.Token, testMeta); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("deactivated account verified: %v", err)
	}
	if _, err := svc.Login(ctx, "cashier", "Passw0rd!", testMeta); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deactivated login: %v", err)
	}

	if err := svc.SetAccountActive(ctx, admin.User.ID, u.ID, true, testMeta); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.Login(ctx, "cashier", "Passw0rd!", testMeta); err != nil {
		t.Fatalf("reactivated login: %v", err)
	}
}
