package store

import (
	"context"
	"database/sql"
	"time"
)

type AccountsStore interface {
	Create(ctx context.Context, acc *Account) (int64, error)
	Get(ctx context.Context, id int64) (*Account, error)
	// FindByLogin matches active accounts by username or email.
	FindByLogin(ctx context.Context, identifier string) (*Account, error)
	CountActive(ctx context.Context) (int, error)
	List(ctx context.Context) ([]Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	UpdatePassword(ctx context.Context, id int64, hash, salt string) error

	// Lockout tracking. Failure state is committed even when the surrounding
	// login attempt fails for other reasons.
	RecordFailure(ctx context.Context, id int64, now time.Time, maxFailures int, lockFor time.Duration) (count int, lockedUntil *time.Time, err error)
	RecordSuccess(ctx context.Context, id int64, now time.Time) error
}

type accountsStore struct {
	db *sql.DB
}

func NewAccountsStore(db *sql.DB) AccountsStore {
	return &accountsStore{db: db}
}

const accountColumns = `id, username, email, role, password_hash, salt, active, failed_attempts, last_failed_at, locked_until, last_login_at, password_changed_at, created_at, updated_at`

func (s *accountsStore) Create(ctx context.Context, acc *Account) (int64, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM accounts WHERE username=? OR (email IS NOT NULL AND email=?)`,
		acc.Username, acc.Email).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, ErrDuplicate
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts(username, email, role, password_hash, salt, active, failed_attempts, last_failed_at, locked_until, last_login_at, password_changed_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		acc.Username, nullableString(acc.Email), acc.Role, acc.PasswordHash, acc.Salt, boolToInt(acc.Active),
		acc.FailedAttempts, nullableTime(acc.LastFailedAt), nullableTime(acc.LockedUntil),
		nullableTime(acc.LastLoginAt), now, now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	acc.ID = id
	acc.CreatedAt = now
	acc.UpdatedAt = now
	return id, nil
}

func (s *accountsStore) Get(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=?`, id)
	return scanAccount(row)
}

func (s *accountsStore) FindByLogin(ctx context.Context, identifier string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE active=1 AND (username=? OR email=?)`,
		identifier, identifier)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var email sql.NullString
	var active int
	var lastFailed, locked, lastLogin, pwChanged sql.NullTime
	if err := row.Scan(&a.ID, &a.Username, &email, &a.Role, &a.PasswordHash, &a.Salt, &active,
		&a.FailedAttempts, &lastFailed, &locked, &lastLogin, &pwChanged, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.Email = email.String
	a.Active = active == 1
	if lastFailed.Valid {
		a.LastFailedAt = &lastFailed.Time
	}
	if locked.Valid {
		a.LockedUntil = &locked.Time
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	if pwChanged.Valid {
		a.PasswordChangedAt = &pwChanged.Time
	}
	return &a, nil
}

func (s *accountsStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE active=1`).Scan(&n)
	return n, err
}

func (s *accountsStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Account
	for rows.Next() {
		var a Account
		var email sql.NullString
		var active int
		var lastFailed, locked, lastLogin, pwChanged sql.NullTime
		if err := rows.Scan(&a.ID, &a.Username, &email, &a.Role, &a.PasswordHash, &a.Salt, &active,
			&a.FailedAttempts, &lastFailed, &locked, &lastLogin, &pwChanged, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Email = email.String
		a.Active = active == 1
		if lastFailed.Valid {
			a.LastFailedAt = &lastFailed.Time
		}
		if locked.Valid {
			a.LockedUntil = &locked.Time
		}
		if lastLogin.Valid {
			a.LastLoginAt = &lastLogin.Time
		}
		if pwChanged.Valid {
			a.PasswordChangedAt = &pwChanged.Time
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *accountsStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *accountsStore) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash=?, salt=?, password_changed_at=?, updated_at=? WHERE id=?`,
		hash, salt, now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *accountsStore) RecordFailure(ctx context.Context, id int64, now time.Time, maxFailures int, lockFor time.Duration) (int, *time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	var count int
	var locked sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT failed_attempts, locked_until FROM accounts WHERE id=?`, id).Scan(&count, &locked); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	// A failure after an expired lockout restarts the counter instead of
	// stacking on the stale count.
	if locked.Valid && now.After(locked.Time) {
		count = 1
	} else {
		count++
	}
	var lockedUntil *time.Time
	if count >= maxFailures {
		until := now.Add(lockFor)
		lockedUntil = &until
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts=?, last_failed_at=?, locked_until=?, updated_at=? WHERE id=?`,
		count, now, nullableTime(lockedUntil), now, id); err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return count, lockedUntil, nil
}

func (s *accountsStore) RecordSuccess(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts=0, last_failed_at=NULL, locked_until=NULL, last_login_at=?, updated_at=? WHERE id=?`,
		now, now, id)
	return err
}
