package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"zonecounter/internal/dto"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
)

// Sink persists pushed zone lists and count snapshots.
type Sink interface {
	SaveZones(ctx context.Context, req dto.SaveZonesRequest) (dto.SaveZonesResponse, error)
	LogCounts(ctx context.Context, req dto.LogCountsRequest) (dto.LogCountsResponse, error)
	ZonesFile() string
	CountsFile() string
}

// SaveZonesHandler handles POST /save_zones.
func SaveZonesHandler(sink Sink, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		var req dto.SaveZonesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid payload: "+err.Error())
			return
		}

		resp, err := sink.SaveZones(r.Context(), req)
		if err != nil {
			logger.Error("Error saving zones: %v", err)
			httputil.InternalServerError(w, "failed to save zones")
			return
		}
		logger.Debug("Saved %d zones (%d rows for %q)", len(req.Zones), resp.Inserted, req.File)
		httputil.WriteJSONOK(w, resp)
	}
}

// LogCountsHandler handles POST /log_counts.
func LogCountsHandler(sink Sink, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		var req dto.LogCountsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid payload: "+err.Error())
			return
		}

		resp, err := sink.LogCounts(r.Context(), req)
		if err != nil {
			logger.Error("Error logging counts: %v", err)
			httputil.InternalServerError(w, "failed to log counts")
			return
		}
		httputil.WriteJSONOK(w, resp)
	}
}

// DownloadZonesHandler serves zones.json as an attachment.
func DownloadZonesHandler(sink Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveAttachment(w, r, sink.ZonesFile(), "application/json")
	}
}

// DownloadCountsHandler flushes buffered rows and serves counts_log.csv.
func DownloadCountsHandler(sink Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveAttachment(w, r, sink.CountsFile(), "text/csv")
	}
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path, contentType string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		httputil.NotFound(w, filepath.Base(path)+" not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}
