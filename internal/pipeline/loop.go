package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"zonecounter/internal/dto"
	"zonecounter/internal/logger"
	"zonecounter/internal/metrics"
	"zonecounter/internal/timeutil"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Loop.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultTickInterval   = 33 * time.Millisecond
	DefaultReportInterval = 5 * time.Second
	DefaultProcessEvery   = 3
)

// LoopConfig holds the loop cadence.
type LoopConfig struct {
	TickInterval   time.Duration
	ReportInterval time.Duration
	// ProcessEvery is N: only every Nth non-deferred tick runs the detector.
	ProcessEvery int
}

// LoopOptions are the collaborators of a Loop. Only Session and Detector are required.
type LoopOptions struct {
	Config   LoopConfig
	Session  *Session
	Detector Detector
	Reporter CountsReporter
	Clock    timeutil.Clock
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	// OnCycle is called on the loop goroutine after every processed frame.
	OnCycle func(CycleResult, Frame)
}

// Loop drives a Session from a Source at a fixed tick rate and pushes the
// occupancy snapshot to the reporter on a slower timer. Both timers live on a
// single goroutine, so a cycle always finishes before the next one starts.
type Loop struct {
	cfg      LoopConfig
	session  *Session
	detector Detector
	reporter CountsReporter
	clock    timeutil.Clock
	logger   *logger.Logger
	metrics  *metrics.Metrics
	onCycle  func(CycleResult, Frame)

	mu         sync.Mutex
	state      State
	source     Source
	file       string
	cancel     context.CancelFunc
	done       chan struct{}
	frameCount int
}

// NewLoop creates an idle loop.
func NewLoop(opts LoopOptions) *Loop {
	cfg := opts.Config
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.ProcessEvery <= 0 {
		cfg.ProcessEvery = DefaultProcessEvery
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Loop{
		cfg:      cfg,
		session:  opts.Session,
		detector: opts.Detector,
		reporter: opts.Reporter,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		onCycle:  opts.OnCycle,
		state:    Idle,
	}
}

// Start begins reading src. file names the video the counts belong to and
// may be empty for live sources. Calling Start while running is a no-op and
// returns false; src is then left untouched. A stopped loop can be started again.
func (l *Loop) Start(ctx context.Context, src Source, file string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.state = Running
	l.source = src
	l.file = file
	l.cancel = cancel
	l.done = done
	l.frameCount = 0

	l.logger.WithFields(logrus.Fields{"source": src.Name(), "file": file}).Info("detection loop started")
	go l.run(ctx, src, done)
	return true
}

// Stop cancels the loop, waits for its goroutine and closes the source.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done, src := l.cancel, l.done, l.source
	l.state = Stopped
	l.mu.Unlock()

	cancel()
	<-done

	l.logger.Info("detection loop stopped after %d frames", l.Frames())
	if err := src.Close(); err != nil {
		l.logger.Warning("closing source %s: %v", src.Name(), err)
	}
	return nil
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Source returns the source of the current or last run.
func (l *Loop) Source() Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.source
}

// File returns the video name the counts are attributed to.
func (l *Loop) File() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

// Frames is the number of non-deferred ticks since Start.
func (l *Loop) Frames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameCount
}

func (l *Loop) run(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)

	tick := l.clock.NewTicker(l.cfg.TickInterval)
	defer tick.Stop()
	report := l.clock.NewTicker(l.cfg.ReportInterval)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			l.abandon(src, done)
			return
		case <-tick.C():
			l.Tick(ctx, src)
		case <-report.C():
			l.PushCounts(ctx)
		}
	}
}

// abandon marks the run stopped when its parent context ended without Stop.
func (l *Loop) abandon(src Source, done chan struct{}) {
	l.mu.Lock()
	orphaned := l.state == Running && l.done == done
	if orphaned {
		l.state = Stopped
	}
	l.mu.Unlock()
	if !orphaned {
		return
	}

	l.logger.Info("detection loop cancelled after %d frames", l.Frames())
	if err := src.Close(); err != nil {
		l.logger.Warning("closing source %s: %v", src.Name(), err)
	}
}

// Tick performs one tick against src. It reports whether a detection cycle ran.
func (l *Loop) Tick(ctx context.Context, src Source) bool {
	if ctx.Err() != nil {
		return false
	}
	l.metrics.Ticks.Add(1)

	if src.Status().Deferred() {
		l.metrics.DeferredTicks.Add(1)
		return false
	}

	l.mu.Lock()
	l.frameCount++
	n := l.frameCount
	l.mu.Unlock()

	if n%l.cfg.ProcessEvery != 0 {
		if err := src.Skip(); err != nil && !errors.Is(err, ErrSourceEnded) {
			l.logger.Debug("skip frame: %v", err)
		}
		return false
	}

	start := l.clock.Now()
	frame, err := src.Capture(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceEnded) && !errors.Is(err, ErrNoFrame) {
			l.metrics.CaptureErrors.Add(1)
			l.logger.Warning("capture failed on %s: %v", src.Name(), err)
		}
		return false
	}

	detections, err := l.detector.Detect(ctx, frame)
	if err != nil {
		l.metrics.DetectorErrors.Add(1)
		l.logger.Warning("detector failed, skipping cycle: %v", err)
		return false
	}

	result := l.session.Process(detections, frame.Width, frame.Height, l.clock.Now())
	l.observe(result)
	l.metrics.UpdateCycleLatency(l.clock.Since(start))

	if l.onCycle != nil {
		l.onCycle(result, frame)
	}
	return true
}

func (l *Loop) observe(result CycleResult) {
	l.metrics.Cycles.Add(1)
	l.metrics.ActiveTracks.Store(uint64(len(result.Tracks)))
	for _, e := range result.Entries {
		l.metrics.ObserveEntry(e.ZoneID)
	}
	for _, z := range result.Zones {
		l.metrics.SetOccupancy(z.ZoneID, z.Current)
	}
	for _, e := range result.Entries {
		l.logger.WithFields(logrus.Fields{"track": e.TrackID, "zone": e.ZoneID}).Debug("zone entry")
	}
}

// PushCounts sends the current/peak snapshot to the reporter. Failures are
// logged and counted, never retried.
func (l *Loop) PushCounts(ctx context.Context) {
	if l.reporter == nil {
		return
	}
	snap := l.session.Snapshot()
	l.metrics.RetainedIdentities.Store(uint64(snap.Identities))

	req := dto.LogCountsRequest{File: l.File(), Counts: l.session.Counts()}
	if err := l.reporter.LogCounts(ctx, req); err != nil {
		l.metrics.ReportFailures.Add(1)
		l.logger.Warning("count push failed: %v", err)
	}
}
