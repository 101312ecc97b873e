package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"zonecounter/internal/config"
	"zonecounter/internal/dto"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
	"zonecounter/internal/metrics"
	"zonecounter/internal/pipeline"
	"zonecounter/internal/report"
	"zonecounter/internal/repository/sqlite"
	"zonecounter/internal/route"
	"zonecounter/internal/service"
	"zonecounter/internal/service/ai"
	"zonecounter/internal/service/camera"
	"zonecounter/internal/service/storage"
	"zonecounter/internal/service/video"
	"zonecounter/internal/service/websocket"
	"zonecounter/internal/timeutil"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	detector *ai.DetectorService
	buffer   *storage.CountBuffer
	hub      *websocket.HubService
	cameras  *camera.Listener
	manager  *service.Manager
	router   http.Handler
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	for _, dir := range []string{cfg.DataDirectory, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := sqlite.New(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	videoRepo := sqlite.NewVideoRepository(db)
	zoneRepo := sqlite.NewZoneRepository(db)
	countRepo := sqlite.NewCountRepository(db)

	clock := timeutil.RealClock{}
	buffer := storage.NewCountBuffer(cfg.CountsFile(), cfg.CountFlushInterval, log, countRepo)
	store := storage.NewStore(cfg.ZonesFile(), buffer, videoRepo, zoneRepo, clock, log)

	zones, err := store.LoadZones()
	if err != nil {
		log.Warning("Ignoring unreadable zones file: %v", err)
		zones = nil
	}

	var reporter report.Reporter = report.NewLocal(store)
	if cfg.ReportURL != "" {
		reporter = report.NewHTTPReporter(cfg.ReportURL, httputil.NewStandardClient(httputil.DefaultTimeout)).WithToken(cfg.PushToken)
		log.Info("Pushing zones and counts to %s", cfg.ReportURL)
	}

	detector := ai.NewDetectorService(cfg, log)
	cameras := camera.NewListener(cfg.CamerasPort, cfg.CameraNames, log)
	hub := websocket.NewHubService(log)

	manager := service.NewManager(service.ManagerOptions{
		Config:     cfg,
		Zones:      zones,
		Detector:   detector,
		Annotator:  detector,
		OpenSource: sourceOpener(cfg, cameras),
		Reporter:   reporter,
		Hub:        hub,
		Metrics:    metrics.New(),
		Clock:      clock,
		Logger:     log,
	})

	router := route.SetupRoutes(manager, cfg, log, route.Deps{
		Sink:      store,
		VideoRepo: videoRepo,
		Cameras:   cameras,
	})

	log.Info("Loaded %d zones from %s", len(zones), cfg.ZonesFile())
	return &App{
		config:   cfg,
		logger:   log,
		db:       db,
		detector: detector,
		buffer:   buffer,
		hub:      hub,
		cameras:  cameras,
		manager:  manager,
		router:   router,
	}, nil
}

// sourceOpener maps a start request onto an uploaded file, a local webcam or
// a UDP camera feed.
func sourceOpener(cfg *config.Config, cameras *camera.Listener) service.SourceOpener {
	return func(req dto.StartDetectionRequest) (pipeline.Source, error) {
		switch req.Source {
		case dto.SourceFile:
			return video.OpenFile(filepath.Join(cfg.UploadDir, filepath.Base(req.File)))
		case dto.SourceWebcam:
			return video.OpenDevice(req.Device)
		case dto.SourceCamera:
			return cameras.Source(req.Camera), nil
		}
		return nil, fmt.Errorf("%w: %q", service.ErrUnknownSource, req.Source)
	}
}

// Run serves HTTP and the background services until ctx is done or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: a.router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.buffer.Run(ctx) })
	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error {
		if err := a.cameras.Run(ctx); err != nil {
			a.logger.Warning("UDP camera feed disabled: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("🚀 Zone counter listening on http://localhost:%d", a.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.manager.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Closing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Closing database: %v", err)
	}
}
