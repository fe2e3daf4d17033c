package handler

import (
	"net/http"
	"strconv"
	"time"

	"qrrelay/internal/dto"
	"qrrelay/internal/logger"
	"qrrelay/internal/model"
	"qrrelay/internal/repository"
	"qrrelay/internal/service/storage"

	"github.com/gorilla/mux"
)

const (
	defaultScansLimit = 50
	maxScansLimit     = 500
)

// GetScansHandler handles GET /api/scans. Pending scans are flushed first
// so the listing includes them. Query: limit, offset, token, source, since (RFC3339).
func GetScansHandler(buffer *storage.BufferService, scanRepo repository.ScanRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit := defaultScansLimit
		if v := query.Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = parsed
		}
		if limit > maxScansLimit {
			limit = maxScansLimit
		}

		offset := 0
		if v := query.Get("offset"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "Invalid offset")
				return
			}
			offset = parsed
		}

		filter := &model.ScanFilter{
			Token:  query.Get("token"),
			Source: query.Get("source"),
			Limit:  limit,
			Offset: offset,
		}
		if v := query.Get("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid since, expected RFC3339")
				return
			}
			filter.Since = since
		}

		if buffer != nil {
			buffer.FlushScans()
		}

		records, err := scanRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error loading scans: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to load scans")
			return
		}
		total, err := scanRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting scans: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to load scans")
			return
		}

		scans := make([]dto.ScanInfo, 0, len(records))
		for _, rec := range records {
			scans = append(scans, toScanInfo(rec))
		}

		writeJSON(w, http.StatusOK, dto.ScansData{Scans: scans, Length: total, Limit: limit})
	}
}

// GetScanHandler handles GET /api/scans/{id}.
func GetScanHandler(buffer *storage.BufferService, scanRepo repository.ScanRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid scan id")
			return
		}

		if buffer != nil {
			buffer.FlushScans()
		}

		rec, err := scanRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading scan %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Failed to load scan")
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "Scan not found")
			return
		}
		writeJSON(w, http.StatusOK, toScanInfo(*rec))
	}
}

func toScanInfo(rec model.ScanRecord) dto.ScanInfo {
	return dto.ScanInfo{
		ID:           rec.ID,
		Payload:      rec.Payload,
		Token:        rec.Token,
		Source:       rec.Source,
		Method:       rec.Method,
		Verification: rec.Verification,
		ReceivedAt:   rec.ReceivedAt,
	}
}

// ClearScansHandler handles POST /api/scans/clear.
func ClearScansHandler(scanRepo repository.ScanRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := scanRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing scans: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear scans")
			return
		}
		logger.Info("Scan log cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}
