package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"zonecounter/internal/config"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/repository"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	// MaxUploadSize caps a single uploaded video.
	MaxUploadSize = 2 << 30
	uploadField   = "video"
)

// VideosData is the response of GET /api/videos.
type VideosData struct {
	Videos []model.Video     `json:"videos"`
	Stats  *model.VideoStats `json:"stats,omitempty"`
}

// UploadHandler handles POST /upload: stores the video under a unique name,
// records it and redirects to the player with ?file=<name>. JSON clients get
// the stored record instead.
func UploadHandler(cfg *config.Config, logger *logger.Logger, videoRepo repository.VideoRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			httputil.BadRequest(w, "no file")
			return
		}
		defer file.Close()

		if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
			logger.Error("Error creating upload directory: %v", err)
			httputil.InternalServerError(w, "upload failed")
			return
		}

		filename := uploadName(header.Filename, time.Now())
		path := filepath.Join(cfg.UploadDir, filename)
		size, err := saveUpload(file, path)
		if err != nil {
			logger.Error("Error saving upload %s: %v", filename, err)
			httputil.InternalServerError(w, "upload failed")
			return
		}

		video := &model.Video{
			Filename:     filename,
			OriginalName: header.Filename,
			MimeType:     header.Header.Get("Content-Type"),
			FilePath:     path,
			FileSize:     size,
		}
		if videoRepo != nil {
			id, err := videoRepo.Insert(video)
			if err != nil {
				logger.Warning("Error recording upload %s: %v", filename, err)
			}
			video.ID = id
		}
		logger.Info("Uploaded %s (%s)", filename, humanize.Bytes(uint64(size)))

		if wantsJSON(r) {
			httputil.WriteJSON(w, http.StatusCreated, video)
			return
		}
		http.Redirect(w, r, "/?file="+filename, http.StatusSeeOther)
	}
}

func saveUpload(src io.Reader, path string) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return size, nil
}

// uploadName prefixes the sanitized original name with the upload time and a
// short random id so repeated uploads never collide.
func uploadName(original string, now time.Time) string {
	base := sanitizeName(filepath.Base(original))
	if base == "" {
		base = "video"
	}
	return fmt.Sprintf("%d_%s_%s", now.Unix(), uuid.NewString()[:8], base)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// ServeUploadHandler serves /uploads/{name}.
func ServeUploadHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.PathValue("name"))
		if name == "." || name == "/" || name == "" {
			httputil.BadRequest(w, "file name required")
			return
		}
		path := filepath.Join(cfg.UploadDir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			httputil.NotFound(w, "video not found")
			return
		}
		http.ServeFile(w, r, path)
	}
}

// VideosHandler lists uploaded videos, newest first, with storage statistics.
func VideosHandler(logger *logger.Logger, videoRepo repository.VideoRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}

		videos, err := videoRepo.GetAll()
		if err != nil {
			logger.Error("Error querying videos from database: %v", err)
			httputil.InternalServerError(w, "failed to list videos")
			return
		}

		stats, err := videoRepo.GetStats()
		if err != nil {
			logger.Error("Error getting video stats: %v", err)
			stats = nil
		}

		httputil.WriteJSONOK(w, VideosData{Videos: videos, Stats: stats})
	}
}

// VideoHandler serves /api/videos/{id}: GET streams the stored file, DELETE
// removes it from disk and the database.
func VideoHandler(logger *logger.Logger, videoRepo repository.VideoRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			httputil.BadRequest(w, "invalid video id")
			return
		}

		video, err := videoRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading video %d: %v", id, err)
			httputil.InternalServerError(w, "failed to load video")
			return
		}
		if video == nil {
			httputil.NotFound(w, "video not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			http.ServeFile(w, r, video.FilePath)

		case http.MethodDelete:
			if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
				logger.Error("Failed to delete file %s: %v", video.FilePath, err)
			}
			if err := videoRepo.Delete(id); err != nil {
				logger.Error("Failed to delete video %d from database: %v", id, err)
				httputil.InternalServerError(w, "failed to delete video")
				return
			}
			logger.Info("Deleted video: %s", video.Filename)
			httputil.WriteJSONOK(w, map[string]string{"status": "deleted", "filename": video.Filename})

		default:
			httputil.MethodNotAllowed(w)
		}
	}
}
