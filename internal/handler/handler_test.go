package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zonecounter/internal/config"
	"zonecounter/internal/dto"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/pipeline"
	"zonecounter/internal/repository/sqlite"
	"zonecounter/internal/service"
	"zonecounter/internal/service/storage"
	"zonecounter/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleSource struct{ live bool }

func (s *idleSource) Name() string { return "idle" }
func (s *idleSource) Status() pipeline.SourceStatus {
	return pipeline.SourceStatus{Live: s.live}
}
func (s *idleSource) Skip() error { return nil }
func (s *idleSource) Capture(ctx context.Context) (pipeline.Frame, error) {
	return pipeline.Frame{}, pipeline.ErrNoFrame
}
func (s *idleSource) Close() error { return nil }
func (s *idleSource) Pause()       {}
func (s *idleSource) Resume()      {}

type noDetections struct{}

func (noDetections) Detect(ctx context.Context, frame pipeline.Frame) ([]model.Detection, error) {
	return nil, nil
}

type env struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *service.Manager
	store   *storage.Store
	videos  *sqlite.VideoRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		UploadDir:     filepath.Join(dir, "uploads"),
		DataDirectory: filepath.Join(dir, "data"),
		LogDirectory:  filepath.Join(dir, "logs"),
	}
	require.NoError(t, os.MkdirAll(cfg.DataDirectory, 0755))

	db, err := sqlite.New(cfg.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewDiscard()
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	videos := sqlite.NewVideoRepository(db)
	buffer := storage.NewCountBuffer(cfg.CountsFile(), time.Hour, log, sqlite.NewCountRepository(db))
	store := storage.NewStore(cfg.ZonesFile(), buffer, videos, sqlite.NewZoneRepository(db), clock, log)

	manager := service.NewManager(service.ManagerOptions{
		Config:   cfg,
		Detector: noDetections{},
		OpenSource: func(req dto.StartDetectionRequest) (pipeline.Source, error) {
			return &idleSource{live: req.Source != dto.SourceFile}, nil
		},
		Clock:  clock,
		Logger: log,
	})
	t.Cleanup(manager.Close)

	return &env{cfg: cfg, log: log, manager: manager, store: store, videos: videos}
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestZonesHandler_CRUD(t *testing.T) {
	e := newEnv(t)
	zones := ZonesHandler(e.manager, e.log)
	zone := ZoneHandler(e.manager, e.log)

	rec := serve(zones, jsonRequest(http.MethodPost, "/api/zones", dto.CreateZoneRequest{
		Label: "Door",
		From:  model.Point{X: 0.6, Y: 0.6},
		To:    model.Point{X: 0.2, Y: 0.2},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Zone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.Point{X: 0.2, Y: 0.2}, created.TopLeft)

	req := jsonRequest(http.MethodPatch, "/api/zones/"+created.ID, dto.RenameZoneRequest{Label: "Exit"})
	req.SetPathValue("id", created.ID)
	rec = serve(zone, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"Exit"`)

	rec = serve(zones, httptest.NewRequest(http.MethodGet, "/api/zones", nil))
	var listed []model.Zone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Exit", listed[0].Label)

	req = httptest.NewRequest(http.MethodDelete, "/api/zones/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	assert.Equal(t, http.StatusNoContent, serve(zone, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/zones/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	assert.Equal(t, http.StatusNotFound, serve(zone, req).Code)
}

func TestZonesHandler_ReplaceAndErrors(t *testing.T) {
	e := newEnv(t)
	zones := ZonesHandler(e.manager, e.log)

	rec := serve(zones, jsonRequest(http.MethodPut, "/api/zones", []model.Zone{
		model.NewZone("a", "A", model.Point{}, model.Point{X: 0.5, Y: 0.5}),
		model.NewZone("b", "B", model.Point{X: 0.5, Y: 0.5}, model.Point{X: 1, Y: 1}),
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, e.manager.Zones(), 2)

	bad := httptest.NewRequest(http.MethodPost, "/api/zones", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, serve(zones, bad).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(zones, httptest.NewRequest(http.MethodDelete, "/api/zones", nil)).Code)

	req := jsonRequest(http.MethodPatch, "/api/zones/missing", dto.RenameZoneRequest{Label: "x"})
	req.SetPathValue("id", "missing")
	assert.Equal(t, http.StatusNotFound, serve(ZoneHandler(e.manager, e.log), req).Code)
}

func TestSinkHandlers(t *testing.T) {
	e := newEnv(t)

	rec := serve(DownloadZonesHandler(e.store), httptest.NewRequest(http.MethodGet, "/download_zones", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(DownloadCountsHandler(e.store), httptest.NewRequest(http.MethodGet, "/download_counts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(SaveZonesHandler(e.store, e.log), jsonRequest(http.MethodPost, "/save_zones", dto.SaveZonesRequest{
		Zones: []model.Zone{model.NewZone("z1", "Door", model.Point{}, model.Point{X: 0.5, Y: 0.5})},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"inserted":0}`, rec.Body.String())

	rec = serve(LogCountsHandler(e.store, e.log), jsonRequest(http.MethodPost, "/log_counts", dto.LogCountsRequest{
		Counts: map[string]dto.ZoneCount{
			"z1": {Current: 2, Peak: 3, Label: "Door"},
			"z2": {Current: 1, Peak: 4, Label: "Till"},
		},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"total_current":3,"total_peak":7}`, rec.Body.String())

	rec = serve(DownloadZonesHandler(e.store), httptest.NewRequest(http.MethodGet, "/download_zones", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "zones.json")
	assert.Contains(t, rec.Body.String(), `"topleft"`)

	rec = serve(DownloadCountsHandler(e.store), httptest.NewRequest(http.MethodGet, "/download_counts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ts,zone_id,label,current,peak\n"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"))

	assert.Equal(t, http.StatusMethodNotAllowed, serve(SaveZonesHandler(e.store, e.log), httptest.NewRequest(http.MethodGet, "/save_zones", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(LogCountsHandler(e.store, e.log), httptest.NewRequest(http.MethodPost, "/log_counts", strings.NewReader("nope"))).Code)
}

func uploadRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	e := newEnv(t)
	h := UploadHandler(e.cfg, e.log, e.videos)

	req := uploadRequest(t, "video", "my clip.mp4", []byte("fake video"))
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var video model.Video
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &video))
	assert.True(t, strings.HasSuffix(video.Filename, "_my_clip.mp4"), video.Filename)
	assert.Equal(t, "my clip.mp4", video.OriginalName)
	assert.Equal(t, int64(10), video.FileSize)
	assert.Positive(t, video.ID)

	data, err := os.ReadFile(filepath.Join(e.cfg.UploadDir, video.Filename))
	require.NoError(t, err)
	assert.Equal(t, "fake video", string(data))

	stored, err := e.videos.GetByFilename(video.Filename)
	require.NoError(t, err)
	require.NotNil(t, stored)

	rec = serve(h, uploadRequest(t, "video", "second.mp4", []byte("x")))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/?file="))

	rec = serve(h, uploadRequest(t, "other", "x.mp4", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeUploadHandler(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.cfg.UploadDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.UploadDir, "clip.mp4"), []byte("data"), 0644))
	h := ServeUploadHandler(e.cfg)

	req := httptest.NewRequest(http.MethodGet, "/uploads/clip.mp4", nil)
	req.SetPathValue("name", "clip.mp4")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/uploads/missing.mp4", nil)
	req.SetPathValue("name", "missing.mp4")
	assert.Equal(t, http.StatusNotFound, serve(h, req).Code)
}

func TestVideosHandlers(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.cfg.UploadDir, 0755))
	path := filepath.Join(e.cfg.UploadDir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	id, err := e.videos.Insert(&model.Video{Filename: "clip.mp4", OriginalName: "clip.mp4", FilePath: path, FileSize: 4})
	require.NoError(t, err)

	rec := serve(VideosHandler(e.log, e.videos), httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var data VideosData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Len(t, data.Videos, 1)
	require.NotNil(t, data.Stats)
	assert.Equal(t, 1, data.Stats.TotalVideos)

	h := VideoHandler(e.log, e.videos)
	req := httptest.NewRequest(http.MethodDelete, "/api/videos/1", nil)
	req.SetPathValue("id", "1")
	require.Equal(t, int64(1), id)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	assert.NoFileExists(t, path)

	req = httptest.NewRequest(http.MethodGet, "/api/videos/1", nil)
	req.SetPathValue("id", "1")
	assert.Equal(t, http.StatusNotFound, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/videos/abc", nil)
	req.SetPathValue("id", "abc")
	assert.Equal(t, http.StatusBadRequest, serve(h, req).Code)
}

func TestDetectionHandlers(t *testing.T) {
	e := newEnv(t)
	start := StartDetectionHandler(e.manager, e.log)

	tests := []struct {
		name string
		body dto.StartDetectionRequest
	}{
		{"unknown source", dto.StartDetectionRequest{Source: "satellite"}},
		{"file without name", dto.StartDetectionRequest{Source: dto.SourceFile}},
		{"camera without name", dto.StartDetectionRequest{Source: dto.SourceCamera}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(start, jsonRequest(http.MethodPost, "/api/detection/start", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Equal(t, http.StatusConflict, serve(StopDetectionHandler(e.manager), httptest.NewRequest(http.MethodPost, "/api/detection/stop", nil)).Code)

	rec := serve(start, jsonRequest(http.MethodPost, "/api/detection/start", dto.StartDetectionRequest{Source: dto.SourceFile, File: "clip.mp4"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var status dto.DetectionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, "clip.mp4", status.File)

	rec = serve(start, jsonRequest(http.MethodPost, "/api/detection/start", dto.StartDetectionRequest{Source: dto.SourceWebcam}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(PauseDetectionHandler(e.manager), httptest.NewRequest(http.MethodPost, "/api/detection/pause", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(ResumeDetectionHandler(e.manager), httptest.NewRequest(http.MethodPost, "/api/detection/resume", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(DetectionStatusHandler(e.manager), httptest.NewRequest(http.MethodGet, "/api/detection/status", nil))
	assert.Contains(t, rec.Body.String(), `"state":"running"`)

	rec = serve(StopDetectionHandler(e.manager), httptest.NewRequest(http.MethodPost, "/api/detection/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"stopped"`)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(StopDetectionHandler(e.manager), httptest.NewRequest(http.MethodGet, "/api/detection/stop", nil)).Code)
}

func TestSeriesAndChart(t *testing.T) {
	e := newEnv(t)
	e.manager.AddZone(dto.CreateZoneRequest{Label: "Door", From: model.Point{}, To: model.Point{X: 0.5, Y: 0.5}})

	rec := serve(SeriesHandler(e.manager), httptest.NewRequest(http.MethodGet, "/api/series", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var series dto.SeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series.Zones, 1)
	assert.Equal(t, "Door", series.Zones[0].Label)

	rec = serve(ZonesChartHandler(e.manager, e.log), httptest.NewRequest(http.MethodGet, "/charts/zones", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Zone entries")
}

type cameraList []string

func (c cameraList) Cameras() []string { return c }

func TestCamerasHandler(t *testing.T) {
	rec := serve(CamerasHandler(cameraList{"entrance"}), httptest.NewRequest(http.MethodGet, "/api/cameras", nil))

	assert.JSONEq(t, `{"cameras":["entrance"]}`, rec.Body.String())
}

func TestUploadName(t *testing.T) {
	now := time.Unix(1700000000, 0)

	name := uploadName("../../etc/My Video (1).mp4", now)

	assert.True(t, strings.HasPrefix(name, "1700000000_"), name)
	assert.True(t, strings.HasSuffix(name, "_My_Video_1.mp4"), name)
	assert.NotContains(t, name, "/")
	assert.True(t, strings.HasSuffix(uploadName("???", now), "_video"))
}

func TestLoginLogout(t *testing.T) {
	cfg := &config.Config{Password: "secret"}
	login := LoginHandler(cfg, logger.NewDiscard())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnauthorized, serve(login, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(login, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "true", rec.Result().Cookies()[0].Value)

	rec = serve(LogoutHandler, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLoginHandler_JSONClient(t *testing.T) {
	login := LoginHandler(&config.Config{Password: "secret"}, logger.NewDiscard())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(login, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(login, httptest.NewRequest(http.MethodGet, "/auth/login", nil)).Code)
}

func logRequest(method, target, level string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.SetPathValue("level", level)
	return req
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewLogger(&config.Config{LogDirectory: dir})
	log.Debug("tick %d skipped", 12)
	log.Warning("detector slow")

	show := LogsHandler(log)
	clearLogs := ClearLogsHandler(log)

	rec := serve(show, logRequest(http.MethodGet, "/logs/debug", "debug"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "tick 12 skipped")

	rec = serve(show, logRequest(http.MethodGet, "/logs/warning", "warning"))
	assert.Contains(t, rec.Body.String(), "detector slow")

	assert.Equal(t, http.StatusNotFound, serve(show, logRequest(http.MethodGet, "/logs/trace", "trace")).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(clearLogs, logRequest(http.MethodGet, "/logs/warning/clear", "warning")).Code)
	assert.Equal(t, http.StatusNotFound, serve(clearLogs, logRequest(http.MethodPost, "/logs/trace/clear", "trace")).Code)

	rec = serve(clearLogs, logRequest(http.MethodPost, "/logs/warning/clear", "warning"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"cleared","level":"warning"}`, rec.Body.String())

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLogsHandler_MissingFile(t *testing.T) {
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	path, _ := log.LogFile("error")
	require.NoError(t, os.Remove(path))

	rec := serve(LogsHandler(log), logRequest(http.MethodGet, "/logs/error", "error"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error.log")
}
