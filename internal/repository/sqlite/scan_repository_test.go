package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"qrrelay/internal/model"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "scan_repo_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := New(filepath.Join(tempDir, "nested", "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}
	return db, cleanup
}

func seedScans(t *testing.T, repo *ScanRepository, base time.Time) {
	t.Helper()

	scans := []model.ScanRecord{
		{Payload: "bankid.aaa.0.c0", Token: "aaa", Source: "scanner", Method: "opencv", ReceivedAt: base},
		{Payload: "bankid.aaa.1.c1", Token: "aaa", Source: "scanner", Method: "zxing", ReceivedAt: base.Add(time.Second)},
		{Payload: "bankid.bbb.0.c2", Token: "bbb", SessionID: "s1", Source: "rotation", ReceivedAt: base.Add(2 * time.Second)},
		{Payload: "plain text", Source: "scanner", Method: "opencv_color", ReceivedAt: base.Add(time.Hour)},
	}
	if err := repo.InsertBatch(scans); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
}

func TestScanRepository_InsertAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScanRepository(db)

	received := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	err := repo.InsertBatch([]model.ScanRecord{{
		Payload:      "bankid.tok.3.abc",
		Token:        "tok",
		Source:       "scanner",
		Method:       "opencv",
		Verification: "valid",
		ReceivedAt:   received,
	}})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	all, err := repo.GetAll(nil)
	if err != nil || len(all) != 1 {
		t.Fatalf("GetAll = (%v, %v), expected one scan", all, err)
	}
	id := all[0].ID

	got, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected scan, got nil")
	}
	if got.Payload != "bankid.tok.3.abc" || got.Token != "tok" || got.Method != "opencv" || got.Verification != "valid" {
		t.Errorf("Got %+v", got)
	}
	if !got.ReceivedAt.Equal(received) {
		t.Errorf("ReceivedAt = %v, expected %v", got.ReceivedAt, received)
	}

	missing, err := repo.GetByID(id + 100)
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = (%v, %v), expected (nil, nil)", missing, err)
	}
}

func TestScanRepository_Filters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScanRepository(db)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	seedScans(t, repo, base)

	tests := []struct {
		name     string
		filter   *model.ScanFilter
		expected int
	}{
		{"no filter", nil, 4},
		{"empty filter", &model.ScanFilter{}, 4},
		{"by token", &model.ScanFilter{Token: "aaa"}, 2},
		{"by source", &model.ScanFilter{Source: "rotation"}, 1},
		{"since", &model.ScanFilter{Since: base.Add(time.Second)}, 3},
		{"token and since", &model.ScanFilter{Token: "aaa", Since: base.Add(time.Second)}, 1},
		{"unknown token", &model.ScanFilter{Token: "zzz"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := repo.GetTotalCount(tt.filter)
			if err != nil {
				t.Fatalf("GetTotalCount failed: %v", err)
			}
			if count != tt.expected {
				t.Errorf("GetTotalCount = %d, expected %d", count, tt.expected)
			}

			scans, err := repo.GetAll(tt.filter)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(scans) != tt.expected {
				t.Errorf("GetAll returned %d, expected %d", len(scans), tt.expected)
			}
		})
	}
}

func TestScanRepository_OrderAndPaging(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScanRepository(db)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	seedScans(t, repo, base)

	scans, err := repo.GetAll(&model.ScanFilter{Limit: 2})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("Expected 2 scans, got %d", len(scans))
	}
	if scans[0].Payload != "plain text" || scans[1].Token != "bbb" {
		t.Errorf("Expected newest first, got %s then %s", scans[0].Payload, scans[1].Payload)
	}

	page, err := repo.GetAll(&model.ScanFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(page) != 2 || page[1].Payload != "bankid.aaa.0.c0" {
		t.Errorf("Second page = %+v", page)
	}
}

func TestScanRepository_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewScanRepository(db)

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	seedScans(t, repo, base)

	removed, err := repo.DeleteOlderThan(base.Add(30 * time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Removed %d, expected 3", removed)
	}

	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if count, _ := repo.GetTotalCount(nil); count != 0 {
		t.Errorf("Expected empty table, got %d", count)
	}
}

func TestScanRepository_EmptyBatch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := NewScanRepository(db).InsertBatch(nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}
