package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"washpos/config"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "washpos_test.db"),
	}
	db, err := NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	return db
}

func newTestAccount(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	id, err := NewAccountsStore(db).Create(context.Background(), &Account{
		Username:     username,
		Role:         "operator",
		PasswordHash: "x",
		Salt:         "y",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", username, err)
	}
	return id
}

func TestAccountsCreateAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountsStore(db)
	ctx := context.Background()

	id, err := accounts.Create(ctx, &Account{
		Username: "owner", Email: "owner@wash.local", Role: "admin",
		PasswordHash: "h", Salt: "s", Active: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero id")
	}
	if _, err := accounts.Create(ctx, &Account{
		Username: "owner", Role: "admin", PasswordHash: "h", Salt: "s", Active: true,
	}); err != ErrDuplicate {
		t.Fatalf("duplicate username: got %v, want ErrDuplicate", err)
	}
	if _, err := accounts.Create(ctx, &Account{
		Username: "other", Email: "owner@wash.local", Role: "admin", PasswordHash: "h", Salt: "s", Active: true,
	}); err != ErrDuplicate {
		t.Fatalf("duplicate email: got %v, want ErrDuplicate", err)
	}
	n, err := accounts.CountActive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountActive: n=%d err=%v", n, err)
	}
}

func TestAccountsFindByLogin(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountsStore(db)
	ctx := context.Background()

	id, err := accounts.Create(ctx, &Account{
		Username: "cashier1", Email: "cashier1@wash.local", Role: "operator",
		PasswordHash: "h", Salt: "s", Active: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byName, err := accounts.FindByLogin(ctx, "cashier1")
	if err != nil || byName == nil || byName.ID != id {
		t.Fatalf("FindByLogin(username): acc=%v err=%v", byName, err)
	}
	byEmail, err := accounts.FindByLogin(ctx, "cashier1@wash.local")
	if err != nil || byEmail == nil || byEmail.ID != id {
		t.Fatalf("FindByLogin(email): acc=%v err=%v", byEmail, err)
	}
	if acc, err := accounts.FindByLogin(ctx, "ghost"); err != nil || acc != nil {
		t.Fatalf("FindByLogin(unknown): acc=%v err=%v", acc, err)
	}

	if err := accounts.SetActive(ctx, id, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if acc, err := accounts.FindByLogin(ctx, "cashier1"); err != nil || acc != nil {
		t.Fatalf("FindByLogin(deactivated): acc=%v err=%v", acc, err)
	}
}

func TestRecordFailureLockout(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountsStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier2")

	now := time.Now().UTC()
	for i := 1; i <= 4; i++ {
		count, locked, err := accounts.RecordFailure(ctx, id, now, 5, 30*time.Minute)
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i, err)
		}
		if count != i || locked != nil {
			t.Fatalf("failure #%d: count=%d locked=%v", i, count, locked)
		}
	}
	count, locked, err := accounts.RecordFailure(ctx, id, now, 5, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailure #5: %v", err)
	}
	if count != 5 || locked == nil {
		t.Fatalf("failure #5: count=%d locked=%v, want lockout", count, locked)
	}
	if got := locked.Sub(now); got != 30*time.Minute {
		t.Fatalf("lockout duration: got %v", got)
	}

	// A failure after the lock expires restarts the counter at 1.
	after := locked.Add(time.Minute)
	count, locked, err = accounts.RecordFailure(ctx, id, after, 5, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailure post-expiry: %v", err)
	}
	if count != 1 || locked != nil {
		t.Fatalf("post-expiry failure: count=%d locked=%v, want count=1", count, locked)
	}
}

func TestRecordSuccessResets(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountsStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier3")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, _, err := accounts.RecordFailure(ctx, id, now, 5, 30*time.Minute); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := accounts.RecordSuccess(ctx, id, now); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	acc, err := accounts.Get(ctx, id)
	if err != nil || acc == nil {
		t.Fatalf("Get: acc=%v err=%v", acc, err)
	}
	if acc.FailedAttempts != 0 || acc.LockedUntil != nil || acc.LastFailedAt != nil {
		t.Fatalf("counters not reset: %+v", acc)
	}
	if acc.LastLoginAt == nil {
		t.Fatal("LastLoginAt not set")
	}
}

func TestSessionsCapEviction(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionsStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier4")

	var created []*SessionRecord
	base := time.Now().UTC()
	for i := 0; i < MaxActiveSessions; i++ {
		rec, err := sessions.Create(ctx, id, fmt.Sprintf("fp-%d", i), "10.0.0.1", "terminal")
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		// Distinct last_activity so the eviction order is deterministic.
		if err := sessions.Touch(ctx, rec.ID, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		created = append(created, rec)
	}

	extra, err := sessions.Create(ctx, id, "fp-extra", "10.0.0.2", "terminal")
	if err != nil {
		t.Fatalf("Create extra: %v", err)
	}
	n, err := sessions.CountActive(ctx, id)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if n != MaxActiveSessions {
		t.Fatalf("active sessions: got %d, want %d", n, MaxActiveSessions)
	}

	oldest, err := sessions.Get(ctx, created[0].ID)
	if err != nil || oldest == nil {
		t.Fatalf("Get oldest: rec=%v err=%v", oldest, err)
	}
	if oldest.Active {
		t.Fatal("oldest session still active after cap eviction")
	}
	if oldest.RevokeReason != "session_limit" {
		t.Fatalf("revoke reason: got %q", oldest.RevokeReason)
	}
	newest, err := sessions.Get(ctx, extra.ID)
	if err != nil || newest == nil || !newest.Active {
		t.Fatalf("new session inactive: rec=%v err=%v", newest, err)
	}
}

func TestSessionsDeactivateAndPurge(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionsStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier5")

	rec, err := sessions.Create(ctx, id, "fp-1", "10.0.0.1", "terminal")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sessions.Deactivate(ctx, rec.ID, "logout", time.Now().UTC()); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := sessions.Deactivate(ctx, rec.ID, "logout", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("Deactivate twice: got %v, want ErrNotFound", err)
	}

	stale, err := sessions.Create(ctx, id, "fp-2", "10.0.0.1", "terminal")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	old := time.Now().UTC().Add(-25 * time.Hour)
	if err := sessions.Touch(ctx, stale.ID, old); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	purged, err := sessions.PurgeStale(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeStale: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged: got %d, want 1", purged)
	}
	got, err := sessions.Get(ctx, stale.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: rec=%v err=%v", got, err)
	}
	if got.Active || got.RevokeReason != "expired" {
		t.Fatalf("stale session: active=%v reason=%q", got.Active, got.RevokeReason)
	}
}

func TestDevicesCapAndReplace(t *testing.T) {
	db := newTestDB(t)
	devices := NewDevicesStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier6")

	base := time.Now().UTC()
	for i := 0; i < MaxDevices; i++ {
		if _, err := devices.Register(ctx, id, fmt.Sprintf("fp-%d", i), "terminal"); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
		if err := devices.Touch(ctx, id, fmt.Sprintf("fp-%d", i), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}

	// Re-registering a known fingerprint must not consume a slot.
	first, err := devices.Register(ctx, id, "fp-0", "terminal v2")
	if err != nil {
		t.Fatalf("Register replace: %v", err)
	}
	if first.DeviceInfo != "terminal v2" {
		t.Fatalf("device info not refreshed: %q", first.DeviceInfo)
	}
	n, err := devices.CountActive(ctx, id)
	if err != nil || n != MaxDevices {
		t.Fatalf("CountActive after replace: n=%d err=%v", n, err)
	}

	// A genuinely new fingerprint evicts the least recently used.
	if _, err := devices.Register(ctx, id, "fp-new", "terminal"); err != nil {
		t.Fatalf("Register new: %v", err)
	}
	n, err = devices.CountActive(ctx, id)
	if err != nil || n != MaxDevices {
		t.Fatalf("CountActive after eviction: n=%d err=%v", n, err)
	}
	ok, err := devices.IsAuthorized(ctx, id, "fp-new")
	if err != nil || !ok {
		t.Fatalf("IsAuthorized(fp-new): ok=%v err=%v", ok, err)
	}
	ok, err = devices.IsAuthorized(ctx, id, "fp-1")
	if err != nil || ok {
		t.Fatalf("IsAuthorized(evicted fp-1): ok=%v err=%v", ok, err)
	}
}

func TestAuditAppendTrims(t *testing.T) {
	db := newTestDB(t)
	audit := NewAuditStore(db)
	ctx := context.Background()
	id := newTestAccount(t, db, "cashier7")

	total := AuditKeep + 7
	for i := 0; i < total; i++ {
		if err := audit.Append(ctx, &AuditRecord{
			AccountID: id,
			Action:    "login_success",
			IP:        "10.0.0.1",
			Details:   fmt.Sprintf("entry %d", i),
		}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	recent, err := audit.ListRecent(ctx, id, 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != AuditKeep {
		t.Fatalf("audit size: got %d, want %d", len(recent), AuditKeep)
	}
	if recent[0].Details != fmt.Sprintf("entry %d", total-1) {
		t.Fatalf("newest entry: got %q", recent[0].Details)
	}
	if recent[len(recent)-1].Details != fmt.Sprintf("entry %d", total-AuditKeep) {
		t.Fatalf("oldest retained entry: got %q", recent[len(recent)-1].Details)
	}
}
