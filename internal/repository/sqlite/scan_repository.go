package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"qrrelay/internal/model"
)

// ScanRepository implements repository.ScanRepository for SQLite.
// Timestamps are stored in UTC so that text comparison orders them.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new SQLite scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// InsertBatch adds multiple scans in a single transaction.
func (r *ScanRepository) InsertBatch(scans []model.ScanRecord) error {
	if len(scans) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scans (payload, token, session_id, source, method, verification, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, scan := range scans {
		if _, err := stmt.Exec(scan.Payload, scan.Token, scan.SessionID, scan.Source, scan.Method, scan.Verification, scan.ReceivedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert scan: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a scan by its ID. A missing scan is (nil, nil).
func (r *ScanRepository) GetByID(id int64) (*model.ScanRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var scan model.ScanRecord
	err := r.db.Conn().QueryRow(`
		SELECT id, payload, token, session_id, source, method, verification, received_at
		FROM scans WHERE id = ?
	`, id).Scan(&scan.ID, &scan.Payload, &scan.Token, &scan.SessionID, &scan.Source, &scan.Method, &scan.Verification, &scan.ReceivedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &scan, nil
}

// GetAll retrieves scans matching the filter, newest first.
func (r *ScanRepository) GetAll(filter *model.ScanFilter) ([]model.ScanRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `
		SELECT id, payload, token, session_id, source, method, verification, received_at
		FROM scans
	` + where + " ORDER BY received_at DESC, id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []model.ScanRecord
	for rows.Next() {
		var scan model.ScanRecord
		if err := rows.Scan(&scan.ID, &scan.Payload, &scan.Token, &scan.SessionID, &scan.Source, &scan.Method, &scan.Verification, &scan.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, scan)
	}

	return scans, rows.Err()
}

// GetTotalCount returns the number of scans matching the filter.
func (r *ScanRepository) GetTotalCount(filter *model.ScanFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow("SELECT COUNT(*) FROM scans"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes scans received before cutoff.
func (r *ScanRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec("DELETE FROM scans WHERE received_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete scans: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes every scan.
func (r *ScanRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec("DELETE FROM scans"); err != nil {
		return fmt.Errorf("failed to delete all scans: %w", err)
	}
	return nil
}

func buildWhere(filter *model.ScanFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return where, args
	}

	if filter.Token != "" {
		where += " AND token = ?"
		args = append(args, filter.Token)
	}

	if filter.Source != "" {
		where += " AND source = ?"
		args = append(args, filter.Source)
	}

	if !filter.Since.IsZero() {
		where += " AND received_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	return where, args
}
