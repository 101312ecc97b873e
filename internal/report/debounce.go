package report

import (
	"context"
	"sync"
	"time"

	"zonecounter/internal/dto"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
)

// DefaultDebounce is the quiet period after the last zone edit before saving.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer runs fn once after Trigger stops being called for delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
}

// NewDebouncer creates a debouncer. It does nothing until triggered.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Flush runs fn now if a call is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.timer = nil
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}

// Stop cancels a pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// ZoneSaver pushes the latest zone list once edits settle. Only the newest
// list is sent; intermediate edits are coalesced.
type ZoneSaver struct {
	reporter Reporter
	file     func() string
	logger   *logger.Logger
	debounce *Debouncer

	mu     sync.Mutex
	latest []model.Zone
	dirty  bool
}

// NewZoneSaver creates a saver. file returns the video name sent with each push.
func NewZoneSaver(reporter Reporter, delay time.Duration, file func() string, log *logger.Logger) *ZoneSaver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if file == nil {
		file = func() string { return "" }
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	s := &ZoneSaver{reporter: reporter, file: file, logger: log}
	s.debounce = NewDebouncer(delay, s.save)
	return s
}

// Schedule records zones as the latest list and restarts the quiet period.
func (s *ZoneSaver) Schedule(zones []model.Zone) {
	s.mu.Lock()
	s.latest = zones
	s.dirty = true
	s.mu.Unlock()
	s.debounce.Trigger()
}

// Flush saves a pending list immediately.
func (s *ZoneSaver) Flush() {
	s.debounce.Flush()
}

// Stop drops a pending save.
func (s *ZoneSaver) Stop() {
	s.debounce.Stop()
}

func (s *ZoneSaver) save() {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	zones := s.latest
	s.dirty = false
	s.mu.Unlock()

	if zones == nil {
		zones = []model.Zone{}
	}
	req := dto.SaveZonesRequest{Zones: zones, File: s.file()}
	if err := s.reporter.SaveZones(context.Background(), req); err != nil {
		s.logger.Warning("zone save failed: %v", err)
	}
}
