package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
)

// LogsHandler serves /logs/{level} (debug, info, warning or error) as text/plain.
func LogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := logger.LogFile(r.PathValue("level"))
		if !ok {
			httputil.NotFound(w, "unknown log level")
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			httputil.NotFound(w, "log file not found: "+filepath.Base(path))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}
}

// ClearLogsHandler handles POST /logs/{level}/clear.
func ClearLogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		level := r.PathValue("level")
		if _, ok := logger.LogFile(level); !ok {
			httputil.NotFound(w, "unknown log level")
			return
		}
		if err := logger.CleanLogs(level); err != nil {
			httputil.InternalServerError(w, "failed to clear "+level+" log")
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "cleared", "level": level})
	}
}
