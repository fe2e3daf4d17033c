package storage

import (
	"context"
	"sync"
	"time"

	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/model"
	"qrrelay/internal/repository"
)

const (
	// DefaultBufferLimit caps how many scans are held in memory between flushes.
	DefaultBufferLimit = 100
	// DefaultFlushInterval defines how often buffered scans are written to the database.
	DefaultFlushInterval = 30 * time.Second
)

// BufferService keeps ingested scans in memory and periodically flushes
// them to the scan log. When the buffer is full it is flushed early.
type BufferService struct {
	scans         []dto.BufferedScan
	limit         int
	flushInterval time.Duration
	retention     time.Duration // 0 = bez usuwania starych wpisów
	mu            sync.Mutex
	logger        *logger.Logger
	scanRepo      repository.ScanRepository
}

// NewBufferService creates a new BufferService. scanRepo may be nil, in
// which case scans are only counted and dropped.
func NewBufferService(limit int, flushInterval time.Duration, logger *logger.Logger, scanRepo repository.ScanRepository) *BufferService {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	return &BufferService{
		scans:         make([]dto.BufferedScan, 0, limit),
		limit:         limit,
		flushInterval: flushInterval,
		logger:        logger,
		scanRepo:      scanRepo,
	}
}

// SetRetention makes Run delete scans older than retention after each
// flush. Zero keeps every scan.
func (s *BufferService) SetRetention(retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = retention
}

// Run flushes on a ticker until ctx is cancelled, then flushes once more.
// Scans past the retention period are pruned on every tick.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	s.PruneScans(time.Now())
	for {
		select {
		case <-ctx.Done():
			s.FlushScans()
			return
		case now := <-ticker.C:
			s.FlushScans()
			s.PruneScans(now)
		}
	}
}

// PruneScans deletes scans received before now minus the retention period.
func (s *BufferService) PruneScans(now time.Time) int64 {
	s.mu.Lock()
	retention := s.retention
	s.mu.Unlock()

	if retention <= 0 || s.scanRepo == nil {
		return 0
	}

	removed, err := s.scanRepo.DeleteOlderThan(now.Add(-retention))
	if err != nil {
		s.logger.Error("Error pruning old scans: %v", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("Pruned %d scans older than %v", removed, retention)
	}
	return removed
}

// AddScan appends a scan to the buffer, flushing first when it is full.
func (s *BufferService) AddScan(scan dto.BufferedScan) {
	s.mu.Lock()
	full := len(s.scans) >= s.limit
	s.mu.Unlock()

	if full {
		s.logger.Warning("Scan buffer full (%d), flushing early", s.limit)
		s.FlushScans()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, scan)
}

// Len returns how many scans are waiting to be flushed.
func (s *BufferService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

// FlushScans writes buffered scans to the database and resets the buffer.
func (s *BufferService) FlushScans() {
	s.mu.Lock()
	if len(s.scans) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.scans
	s.scans = make([]dto.BufferedScan, 0, s.limit)
	s.mu.Unlock()

	if s.scanRepo == nil {
		s.logger.Info("Dropped %d scans (no scan log configured)", len(pending))
		return
	}

	records := make([]model.ScanRecord, 0, len(pending))
	for _, scan := range pending {
		records = append(records, model.ScanRecord{
			Payload:      scan.Payload,
			Token:        scan.Token,
			SessionID:    scan.SessionID,
			Source:       scan.Source,
			Method:       scan.Method,
			Verification: scan.Verification,
			ReceivedAt:   scan.ReceivedAt,
		})
	}

	if err := s.scanRepo.InsertBatch(records); err != nil {
		s.logger.Error("Error saving scans to database: %v", err)
		return
	}

	s.logger.Info("Flushed %d scans to database", len(records))
}
