package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type DevicesStore interface {
	// Register records a device fingerprint for the account, replacing any
	// existing row for the same fingerprint. When the registry is full the
	// least recently used devices are dropped to make room.
	Register(ctx context.Context, accountID int64, fingerprint, deviceInfo string) (*DeviceRecord, error)
	IsAuthorized(ctx context.Context, accountID int64, fingerprint string) (bool, error)
	Touch(ctx context.Context, accountID int64, fingerprint string, at time.Time) error
	ListActive(ctx context.Context, accountID int64) ([]DeviceRecord, error)
	CountActive(ctx context.Context, accountID int64) (int, error)
}

type devicesStore struct {
	db *sql.DB
}

func NewDevicesStore(db *sql.DB) DevicesStore {
	return &devicesStore{db: db}
}

const deviceColumns = `id, account_id, fingerprint, device_info, last_used, active, created_at`

func (s *devicesStore) Register(ctx context.Context, accountID int64, fingerprint, deviceInfo string) (*DeviceRecord, error) {
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV4()).String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Re-registering a known fingerprint refreshes it in place.
	res, err := tx.ExecContext(ctx,
		`UPDATE devices SET device_info=?, last_used=?, active=1 WHERE account_id=? AND fingerprint=?`,
		deviceInfo, now, accountID, fingerprint)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		row := tx.QueryRowContext(ctx,
			`SELECT `+deviceColumns+` FROM devices WHERE account_id=? AND fingerprint=?`, accountID, fingerprint)
		rec, err := scanDevice(row)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return rec, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM devices WHERE account_id=? AND active=1 ORDER BY last_used DESC`, accountID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, did)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) >= MaxDevices {
		for _, did := range ids[MaxDevices-1:] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id=?`, did); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices(id, account_id, fingerprint, device_info, last_used, active, created_at)
		VALUES(?,?,?,?,?,1,?)`,
		id, accountID, fingerprint, deviceInfo, now, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &DeviceRecord{
		ID:          id,
		AccountID:   accountID,
		Fingerprint: fingerprint,
		DeviceInfo:  deviceInfo,
		LastUsed:    now,
		Active:      true,
		CreatedAt:   now,
	}, nil
}

func scanDevice(row *sql.Row) (*DeviceRecord, error) {
	var rec DeviceRecord
	var active int
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.Fingerprint, &rec.DeviceInfo,
		&rec.LastUsed, &active, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Active = active == 1
	return &rec, nil
}

func (s *devicesStore) IsAuthorized(ctx context.Context, accountID int64, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM devices WHERE account_id=? AND fingerprint=? AND active=1`,
		accountID, fingerprint).Scan(&n)
	return n > 0, err
}

func (s *devicesStore) Touch(ctx context.Context, accountID int64, fingerprint string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_used=? WHERE account_id=? AND fingerprint=?`, at, accountID, fingerprint)
	return err
}

func (s *devicesStore) ListActive(ctx context.Context, accountID int64) ([]DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE account_id=? AND active=1 ORDER BY last_used DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DeviceRecord
	for rows.Next() {
		var rec DeviceRecord
		var active int
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Fingerprint, &rec.DeviceInfo,
			&rec.LastUsed, &active, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Active = active == 1
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *devicesStore) CountActive(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM devices WHERE account_id=? AND active=1`, accountID).Scan(&n)
	return n, err
}
