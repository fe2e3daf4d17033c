package repository

import (
	"time"

	"qrrelay/internal/model"
)

// ScanRepository defines the interface for scan log operations.
type ScanRepository interface {
	// Create operations
	InsertBatch(scans []model.ScanRecord) error

	// Read operations
	GetByID(id int64) (*model.ScanRecord, error)
	GetAll(filter *model.ScanFilter) ([]model.ScanRecord, error)
	GetTotalCount(filter *model.ScanFilter) (int, error)

	// Delete operations
	DeleteOlderThan(cutoff time.Time) (int64, error)
	DeleteAll() error
}
