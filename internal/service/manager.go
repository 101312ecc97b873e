package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"zonecounter/internal/config"
	"zonecounter/internal/counting"
	"zonecounter/internal/dto"
	"zonecounter/internal/logger"
	"zonecounter/internal/metrics"
	"zonecounter/internal/model"
	"zonecounter/internal/pipeline"
	"zonecounter/internal/report"
	"zonecounter/internal/service/websocket"
	"zonecounter/internal/timeutil"
	"zonecounter/internal/tracking"
)

var (
	ErrAlreadyRunning = errors.New("detection already running")
	ErrNotPausable    = errors.New("source cannot be paused")
	ErrUnknownSource  = errors.New("unknown source kind")
)

// Annotator draws the cycle result on a JPEG frame for the viewers.
type Annotator interface {
	Annotate(img []byte, result pipeline.CycleResult, zones []model.Zone) ([]byte, error)
}

// SourceOpener opens the frame source a start request asks for.
type SourceOpener func(req dto.StartDetectionRequest) (pipeline.Source, error)

// ManagerOptions are the collaborators of a Manager. Detector and OpenSource
// are required.
type ManagerOptions struct {
	Config     *config.Config
	Zones      []model.Zone
	Detector   pipeline.Detector
	Annotator  Annotator
	OpenSource SourceOpener
	Reporter   report.Reporter
	Hub        *websocket.HubService
	Metrics    *metrics.Metrics
	Clock      timeutil.Clock
	Logger     *logger.Logger
}

// Manager hosts the counting session and its frame loop, forwards zone edits
// to the debounced persistence push and cycle results to the viewers.
type Manager struct {
	session    *pipeline.Session
	loop       *pipeline.Loop
	zoneSaver  *report.ZoneSaver
	hub        *websocket.HubService
	annotator  Annotator
	openSource SourceOpener
	metrics    *metrics.Metrics
	clock      timeutil.Clock
	logger     *logger.Logger

	// lifecycle serializes Start and Stop so a losing Start never touches
	// the running session.
	lifecycle sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(opts ManagerOptions) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	session := pipeline.NewSession(pipeline.SessionConfig{
		Tracker: tracking.Config{MaxDistanceSq: cfg.AssociationDistanceSq},
		Counting: counting.Config{
			SampleInterval:   cfg.SampleInterval,
			SeriesCapacity:   cfg.SeriesCapacity,
			RecountOnReentry: cfg.RecountOnReentry,
		},
	}, opts.Zones)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		session:    session,
		hub:        opts.Hub,
		annotator:  opts.Annotator,
		openSource: opts.OpenSource,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	var reporter pipeline.CountsReporter
	if opts.Reporter != nil {
		reporter = opts.Reporter
	}
	m.loop = pipeline.NewLoop(pipeline.LoopOptions{
		Config: pipeline.LoopConfig{
			TickInterval:   cfg.TickInterval,
			ReportInterval: cfg.ReportInterval,
			ProcessEvery:   cfg.ProcessingInterval,
		},
		Session:  session,
		Detector: opts.Detector,
		Reporter: reporter,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		OnCycle:  m.handleCycle,
	})

	if opts.Reporter != nil {
		m.zoneSaver = report.NewZoneSaver(opts.Reporter, cfg.PersistDebounce, m.loop.File, opts.Logger)
	}
	session.OnZonesChanged(m.zonesChanged)

	m.logger.Info("🎬 Manager started - processing every %d frame(s)", max(cfg.ProcessingInterval, 1))
	return m
}

// Start opens the requested source and starts the loop on it. Aggregates
// from a previous run are reset; zones are kept.
func (m *Manager) Start(req dto.StartDetectionRequest) (dto.DetectionStatus, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.loop.State() == pipeline.Running {
		return m.Status(), ErrAlreadyRunning
	}
	if m.openSource == nil {
		return m.Status(), ErrUnknownSource
	}

	src, err := m.openSource(req)
	if err != nil {
		return m.Status(), err
	}

	m.session.Reset()
	file := ""
	if req.Source == dto.SourceFile {
		file = req.File
	}
	if !m.loop.Start(m.ctx, src, file) {
		src.Close()
		return m.Status(), ErrAlreadyRunning
	}
	return m.Status(), nil
}

// Stop stops the loop and pushes a final count snapshot.
func (m *Manager) Stop() (dto.DetectionStatus, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.loop.Stop(); err != nil {
		return m.Status(), err
	}
	m.loop.PushCounts(m.ctx)
	m.broadcastStatus()
	return m.Status(), nil
}

// Pause pauses a running file source.
func (m *Manager) Pause() (dto.DetectionStatus, error) {
	return m.setPaused(true)
}

// Resume resumes a paused file source.
func (m *Manager) Resume() (dto.DetectionStatus, error) {
	return m.setPaused(false)
}

func (m *Manager) setPaused(paused bool) (dto.DetectionStatus, error) {
	if m.loop.State() != pipeline.Running {
		return m.Status(), pipeline.ErrNotRunning
	}
	p, ok := m.loop.Source().(pipeline.Pausable)
	if !ok || m.loop.Source().Status().Live {
		return m.Status(), ErrNotPausable
	}
	if paused {
		p.Pause()
	} else {
		p.Resume()
	}
	m.broadcastStatus()
	return m.Status(), nil
}

// Status describes the loop and its source.
func (m *Manager) Status() dto.DetectionStatus {
	status := dto.DetectionStatus{
		State:        m.loop.State().String(),
		File:         m.loop.File(),
		Frames:       m.loop.Frames(),
		TotalEntries: m.session.Snapshot().TotalEntries,
	}
	if src := m.loop.Source(); src != nil {
		status.Source = src.Name()
		status.Paused = src.Status().Paused
	}
	return status
}

func (m *Manager) Zones() []model.Zone {
	return m.session.Zones()
}

func (m *Manager) AddZone(req dto.CreateZoneRequest) model.Zone {
	return m.session.AddZone(req.Label, req.From, req.To)
}

func (m *Manager) RenameZone(id, label string) (model.Zone, error) {
	return m.session.RenameZone(id, label)
}

func (m *Manager) DeleteZone(id string) error {
	if err := m.session.DeleteZone(id); err != nil {
		return err
	}
	m.metrics.ForgetZone(id)
	return nil
}

// ReplaceZones swaps the zone list, dropping metrics of zones that disappear.
func (m *Manager) ReplaceZones(zones []model.Zone) []model.Zone {
	before := m.session.Zones()
	after := m.session.ReplaceZones(zones)

	keep := make(map[string]bool, len(after))
	for _, z := range after {
		keep[z.ID] = true
	}
	for _, z := range before {
		if !keep[z.ID] {
			m.metrics.ForgetZone(z.ID)
		}
	}
	return after
}

func (m *Manager) Snapshot() pipeline.Snapshot {
	return m.session.Snapshot()
}

// Series returns every zone's sampled occupancy series.
func (m *Manager) Series() dto.SeriesResponse {
	snap := m.session.Snapshot()
	return dto.SeriesResponse{Zones: snap.Zones, TotalEntries: snap.TotalEntries}
}

func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.hub
}

// Close stops the loop and flushes a pending zone save.
func (m *Manager) Close() {
	if m.loop.State() == pipeline.Running {
		if _, err := m.Stop(); err != nil {
			m.logger.Warning("Stopping detection: %v", err)
		}
	}
	if m.zoneSaver != nil {
		m.zoneSaver.Flush()
		m.zoneSaver.Stop()
	}
	m.cancel()
	m.logger.Info("🛑 Manager stopped")
}

func (m *Manager) zonesChanged(zones []model.Zone) {
	if m.zoneSaver != nil {
		m.zoneSaver.Schedule(zones)
	}
	snap := m.session.Snapshot()
	m.broadcast(dto.CycleEvent{
		Type:         "zones",
		Timestamp:    m.clock.Now(),
		Zones:        snap.Zones,
		TotalEntries: snap.TotalEntries,
	})
}

func (m *Manager) handleCycle(result pipeline.CycleResult, frame pipeline.Frame) {
	if m.hub == nil {
		return
	}

	image := frame.Data
	if m.annotator != nil && len(image) > 0 {
		annotated, err := m.annotator.Annotate(image, result, m.session.Zones())
		if err != nil {
			m.logger.Warning("Failed to annotate frame: %v", err)
		} else {
			image = annotated
		}
	}

	event := dto.CycleEvent{
		Type:         "cycle",
		Timestamp:    result.Timestamp,
		Width:        result.Width,
		Height:       result.Height,
		Detections:   result.Detections,
		Tracks:       result.Tracks,
		Entries:      result.Entries,
		Zones:        result.Zones,
		TotalEntries: result.TotalEntries,
	}
	if len(image) > 0 {
		event.Image = base64.StdEncoding.EncodeToString(image)
	}
	m.broadcast(event)
}

func (m *Manager) broadcastStatus() {
	if m.hub == nil {
		return
	}
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		dto.DetectionStatus
	}{Type: "status", DetectionStatus: m.Status()})
	if err != nil {
		m.logger.Error("Encoding status: %v", err)
		return
	}
	m.hub.Broadcast(data)
}

func (m *Manager) broadcast(event dto.CycleEvent) {
	if m.hub == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Encoding %s event: %v", event.Type, err)
		return
	}
	if !m.hub.Broadcast(data) {
		m.logger.Debug("Viewers behind, dropped %s event", event.Type)
	}
}
