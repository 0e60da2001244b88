package store

import (
	"context"
	"database/sql"
	"time"

	"washpos/core/utils"
)

type SessionsStore interface {
	// Create inserts a new active session. When the account already holds
	// MaxActiveSessions, the oldest by last_activity are revoked first so the
	// cap is never exceeded.
	Create(ctx context.Context, accountID int64, fingerprint, ip, userAgent string) (*SessionRecord, error)
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id, reason string, at time.Time) error
	ListActive(ctx context.Context, accountID int64) ([]SessionRecord, error)
	CountActive(ctx context.Context, accountID int64) (int, error)
	// PurgeStale revokes active sessions idle past the cutoff. Returns the
	// number revoked.
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionsStore {
	return &sessionsStore{db: db}
}

const sessionColumns = `id, account_id, fingerprint, ip, user_agent, created_at, last_activity, active, revoked_at, revoke_reason`

func (s *sessionsStore) Create(ctx context.Context, accountID int64, fingerprint, ip, userAgent string) (*SessionRecord, error) {
	id, err := utils.RandToken(32)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM sessions WHERE account_id=? AND active=1 ORDER BY last_activity DESC`, accountID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, sid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Room for the new session: keep the MaxActiveSessions-1 most recent.
	if len(ids) >= MaxActiveSessions {
		for _, sid := range ids[MaxActiveSessions-1:] {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions SET active=0, revoked_at=?, revoke_reason=? WHERE id=?`,
				now, "session_limit", sid); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions(id, account_id, fingerprint, ip, user_agent, created_at, last_activity, active, revoked_at, revoke_reason)
		VALUES(?,?,?,?,?,?,?,1,NULL,'')`,
		id, accountID, fingerprint, ip, userAgent, now, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &SessionRecord{
		ID:           id,
		AccountID:    accountID,
		Fingerprint:  fingerprint,
		IP:           ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}, nil
}

func (s *sessionsStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	var rec SessionRecord
	var active int
	var revokedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.Fingerprint, &rec.IP, &rec.UserAgent,
		&rec.CreatedAt, &rec.LastActivity, &active, &revokedAt, &rec.RevokeReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Active = active == 1
	if revokedAt.Valid {
		rec.RevokedAt = &revokedAt.Time
	}
	return &rec, nil
}

func (s *sessionsStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_activity=? WHERE id=? AND active=1`, at, id)
	return err
}

func (s *sessionsStore) Deactivate(ctx context.Context, id, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active=0, revoked_at=?, revoke_reason=? WHERE id=? AND active=1`,
		at, reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sessionsStore) ListActive(ctx context.Context, accountID int64) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE account_id=? AND active=1 ORDER BY last_activity DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var active int
		var revokedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Fingerprint, &rec.IP, &rec.UserAgent,
			&rec.CreatedAt, &rec.LastActivity, &active, &revokedAt, &rec.RevokeReason); err != nil {
			return nil, err
		}
		rec.Active = active == 1
		if revokedAt.Valid {
			rec.RevokedAt = &revokedAt.Time
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *sessionsStore) CountActive(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE account_id=? AND active=1`, accountID).Scan(&n)
	return n, err
}

func (s *sessionsStore) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active=0, revoked_at=?, revoke_reason=? WHERE active=1 AND last_activity < ?`,
		time.Now().UTC(), "expired", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionsStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE active=0 AND last_activity < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
