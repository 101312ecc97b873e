package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"zonecounter/internal/dto"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
	"zonecounter/internal/pipeline"
	"zonecounter/internal/service"
)

// StartDetectionHandler handles POST /api/detection/start.
func StartDetectionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		var req dto.StartDetectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid request: "+err.Error())
			return
		}
		switch req.Source {
		case dto.SourceFile:
			if req.File == "" {
				httputil.BadRequest(w, "file required")
				return
			}
		case dto.SourceWebcam:
		case dto.SourceCamera:
			if req.Camera == "" {
				httputil.BadRequest(w, "camera required")
				return
			}
		default:
			httputil.BadRequest(w, "unknown source: "+req.Source)
			return
		}

		status, err := manager.Start(req)
		switch {
		case errors.Is(err, service.ErrAlreadyRunning):
			httputil.WriteJSON(w, http.StatusConflict, status)
		case err != nil:
			logger.Error("Error starting detection: %v", err)
			httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			httputil.WriteJSONOK(w, status)
		}
	}
}

// StopDetectionHandler handles POST /api/detection/stop.
func StopDetectionHandler(manager *service.Manager) http.HandlerFunc {
	return controlHandler(manager.Stop)
}

// PauseDetectionHandler handles POST /api/detection/pause.
func PauseDetectionHandler(manager *service.Manager) http.HandlerFunc {
	return controlHandler(manager.Pause)
}

// ResumeDetectionHandler handles POST /api/detection/resume.
func ResumeDetectionHandler(manager *service.Manager) http.HandlerFunc {
	return controlHandler(manager.Resume)
}

func controlHandler(action func() (dto.DetectionStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		status, err := action()
		switch {
		case errors.Is(err, pipeline.ErrNotRunning), errors.Is(err, service.ErrNotPausable):
			httputil.WriteJSON(w, http.StatusConflict, status)
		case err != nil:
			httputil.InternalServerError(w, err.Error())
		default:
			httputil.WriteJSONOK(w, status)
		}
	}
}

// DetectionStatusHandler handles GET /api/detection/status.
func DetectionStatusHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, manager.Status())
	}
}

// SeriesHandler handles GET /api/series.
func SeriesHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, manager.Series())
	}
}
