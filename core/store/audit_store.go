package store

import (
	"context"
	"database/sql"
	"time"
)

type AuditStore interface {
	// Append inserts a record and trims the account's history down to
	// AuditKeep entries, oldest first.
	Append(ctx context.Context, rec *AuditRecord) error
	ListRecent(ctx context.Context, accountID int64, limit int) ([]AuditRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Append(ctx context.Context, rec *AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log(account_id, action, ip, user_agent, details, created_at)
		VALUES(?,?,?,?,?,?)`,
		rec.AccountID, rec.Action, rec.IP, rec.UserAgent, rec.Details, rec.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM audit_log WHERE account_id=?`, rec.AccountID).Scan(&n); err != nil {
		return err
	}
	if n > AuditKeep {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM audit_log WHERE account_id=? AND id IN (
				SELECT id FROM audit_log WHERE account_id=? ORDER BY id ASC LIMIT ?
			)`, rec.AccountID, rec.AccountID, n-AuditKeep); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *auditStore) ListRecent(ctx context.Context, accountID int64, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > AuditKeep {
		limit = AuditKeep
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, action, ip, user_agent, details, created_at
		FROM audit_log WHERE account_id=? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Action, &rec.IP, &rec.UserAgent, &rec.Details, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *auditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
