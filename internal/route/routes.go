package route

import (
	"net/http"
	"os"
	"path/filepath"

	"zonecounter/internal/config"
	"zonecounter/internal/handler"
	"zonecounter/internal/logger"
	"zonecounter/internal/middleware"
	"zonecounter/internal/repository"
	"zonecounter/internal/service"
)

// Deps are the collaborators the handlers need besides the manager.
type Deps struct {
	Sink      handler.Sink
	VideoRepo repository.VideoRepository
	Cameras   handler.CameraLister
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Viewer and pipeline control
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(manager, logger))
	mux.HandleFunc("/api/zones", handler.ZonesHandler(manager, logger))
	mux.HandleFunc("/api/zones/{id}", handler.ZoneHandler(manager, logger))
	mux.HandleFunc("/api/detection/start", handler.StartDetectionHandler(manager, logger))
	mux.HandleFunc("/api/detection/stop", handler.StopDetectionHandler(manager))
	mux.HandleFunc("/api/detection/pause", handler.PauseDetectionHandler(manager))
	mux.HandleFunc("/api/detection/resume", handler.ResumeDetectionHandler(manager))
	mux.HandleFunc("/api/detection/status", handler.DetectionStatusHandler(manager))
	mux.HandleFunc("/api/series", handler.SeriesHandler(manager))
	mux.HandleFunc("/charts/zones", handler.ZonesChartHandler(manager, logger))
	if deps.Cameras != nil {
		mux.HandleFunc("/api/cameras", handler.CamerasHandler(deps.Cameras))
	}
	mux.Handle("/metrics", manager.Metrics().Handler())

	// Persistence sink
	if deps.Sink != nil {
		mux.HandleFunc("/save_zones", handler.SaveZonesHandler(deps.Sink, logger))
		mux.HandleFunc("/log_counts", handler.LogCountsHandler(deps.Sink, logger))
		mux.HandleFunc("/download_zones", handler.DownloadZonesHandler(deps.Sink))
		mux.HandleFunc("/download_counts", handler.DownloadCountsHandler(deps.Sink))
	}

	// Videos
	mux.HandleFunc("/upload", handler.UploadHandler(cfg, logger, deps.VideoRepo))
	mux.HandleFunc("/uploads/{name}", handler.ServeUploadHandler(cfg))
	if deps.VideoRepo != nil {
		mux.HandleFunc("/api/videos", handler.VideosHandler(logger, deps.VideoRepo))
		mux.HandleFunc("/api/videos/{id}", handler.VideoHandler(logger, deps.VideoRepo))
	}

	// Log endpoints
	mux.HandleFunc("/logs/{level}", handler.LogsHandler(logger))
	mux.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux, cfg.PushToken)
}
