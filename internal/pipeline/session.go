// Package pipeline runs the per-frame counting pipeline: a Session holds the
// zones and all derived state, and a Loop feeds it frames at a fixed rate.
package pipeline

import (
	"sync"
	"time"

	"zonecounter/internal/counting"
	"zonecounter/internal/dto"
	"zonecounter/internal/model"
	"zonecounter/internal/tracking"

	"github.com/google/uuid"
)

// SessionConfig groups the tuning of the components a session owns.
type SessionConfig struct {
	Tracker  tracking.Config
	Counting counting.Config
}

// CycleResult is what one processed frame produced. All slices are copies.
type CycleResult struct {
	Timestamp    time.Time
	Width        int
	Height       int
	Detections   []model.Detection
	Tracks       []tracking.Track
	Entries      []counting.Entry
	Zones        []counting.ZoneStats
	TotalEntries int
	Sampled      bool
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Zones        []counting.ZoneStats `json:"zones"`
	TotalEntries int                  `json:"total_entries"`
	ActiveTracks int                  `json:"active_tracks"`
	Identities   int                  `json:"identities"`
}

// Session owns zones, tracker, crossing markers and aggregates. A single
// mutex serializes detection cycles and zone edits, so readers never observe a
// half-applied cycle.
type Session struct {
	mu      sync.Mutex
	cfg     SessionConfig
	zones   []model.Zone
	tracker *tracking.Tracker
	markers counting.Markers
	state   *counting.State

	onZonesChanged func([]model.Zone)
}

// NewSession creates a session with the given starting zones. Zones are
// normalized and labelled on the way in.
func NewSession(cfg SessionConfig, zones []model.Zone) *Session {
	s := &Session{cfg: cfg}
	s.reset()
	s.zones = normalizeAll(zones)
	return s
}

func (s *Session) reset() {
	s.tracker = tracking.NewTracker(s.cfg.Tracker)
	s.markers = counting.Markers{}
	s.state = counting.NewState(s.cfg.Counting)
}

func normalizeAll(zones []model.Zone) []model.Zone {
	out := make([]model.Zone, 0, len(zones))
	for _, z := range zones {
		z = z.Normalize()
		if z.ID == "" {
			z.ID = uuid.NewString()
		}
		if z.Label == "" {
			z.Label = model.DefaultZoneLabel
		}
		out = append(out, z)
	}
	return out
}

// OnZonesChanged registers fn to be called, outside the lock, with a copy of
// the zone list after every zone edit.
func (s *Session) OnZonesChanged(fn func([]model.Zone)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onZonesChanged = fn
}

// Reset drops tracks, markers and aggregates, keeping the zones. Used when a
// new source starts.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Zones returns a copy of the zone list.
func (s *Session) Zones() []model.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zonesCopy()
}

func (s *Session) zonesCopy() []model.Zone {
	out := make([]model.Zone, len(s.zones))
	copy(out, s.zones)
	return out
}

func (s *Session) notify(zones []model.Zone) {
	s.mu.Lock()
	fn := s.onZonesChanged
	s.mu.Unlock()
	if fn != nil {
		fn(zones)
	}
}

// AddZone creates a zone from two opposite corners. The label defaults to "Zone".
func (s *Session) AddZone(label string, a, b model.Point) model.Zone {
	if label == "" {
		label = model.DefaultZoneLabel
	}
	z := model.NewZone(uuid.NewString(), label, a, b)

	s.mu.Lock()
	s.zones = append(s.zones, z)
	zones := s.zonesCopy()
	s.mu.Unlock()

	s.notify(zones)
	return z
}

// RenameZone changes a zone label. Aggregates are untouched.
func (s *Session) RenameZone(id, label string) (model.Zone, error) {
	if label == "" {
		label = model.DefaultZoneLabel
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return model.Zone{}, ErrZoneNotFound
	}
	s.zones[idx].Label = label
	z := s.zones[idx]
	zones := s.zonesCopy()
	s.mu.Unlock()

	s.notify(zones)
	return z, nil
}

// DeleteZone removes a zone together with its aggregate, series and markers.
func (s *Session) DeleteZone(id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrZoneNotFound
	}
	s.zones = append(s.zones[:idx], s.zones[idx+1:]...)
	s.state.Remove(id)
	s.markers.ForgetZone(id)
	zones := s.zonesCopy()
	s.mu.Unlock()

	s.notify(zones)
	return nil
}

// ReplaceZones swaps the whole zone list. Aggregates of zones that disappear
// are dropped; surviving ids keep their counts.
func (s *Session) ReplaceZones(zones []model.Zone) []model.Zone {
	next := normalizeAll(zones)

	s.mu.Lock()
	keep := make(map[string]bool, len(next))
	for _, z := range next {
		keep[z.ID] = true
	}
	for _, z := range s.zones {
		if !keep[z.ID] {
			s.state.Remove(z.ID)
			s.markers.ForgetZone(z.ID)
		}
	}
	s.zones = next
	out := s.zonesCopy()
	s.mu.Unlock()

	s.notify(out)
	return out
}

func (s *Session) indexOf(id string) int {
	for i, z := range s.zones {
		if z.ID == id {
			return i
		}
	}
	return -1
}

// Process runs one detection cycle: person detections go through the tracker,
// the crossing detector and the aggregates, and the series is sampled when due.
func (s *Session) Process(detections []model.Detection, width, height int, now time.Time) CycleResult {
	persons := model.FilterLabel(detections, model.PersonLabel)
	frame := counting.Frame{Width: width, Height: height}

	s.mu.Lock()
	defer s.mu.Unlock()

	tracks := s.tracker.Update(persons)
	entries := counting.DetectEntries(tracks, s.tracker.Previous, s.zones, frame, s.markers, s.state)
	for id, n := range counting.Occupancy(tracks, s.zones, frame) {
		s.state.RecordCycle(id, n)
	}
	sampled := s.state.SampleSeries(now, s.zones)

	return CycleResult{
		Timestamp:    now,
		Width:        width,
		Height:       height,
		Detections:   persons,
		Tracks:       tracks,
		Entries:      entries,
		Zones:        s.state.Snapshot(s.zones),
		TotalEntries: s.state.TotalEntries(),
		Sampled:      sampled,
	}
}

// Snapshot returns the current per-zone stats.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Zones:        s.state.Snapshot(s.zones),
		TotalEntries: s.state.TotalEntries(),
		ActiveTracks: len(s.tracker.Active()),
		Identities:   s.retainedIdentities(),
	}
}

// retainedIdentities counts identities that still hold a marker. Marker
// history is never evicted, so this only grows while a source runs.
func (s *Session) retainedIdentities() int {
	n := 0
	for _, zones := range s.markers {
		if len(zones) > 0 {
			n++
		}
	}
	return n
}

// Counts returns the current/peak snapshot pushed to the count log.
func (s *Session) Counts() map[string]dto.ZoneCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]dto.ZoneCount, len(s.zones))
	for _, z := range s.zones {
		st := s.state.Stats(z)
		out[z.ID] = dto.ZoneCount{Current: st.Current, Peak: st.Peak, Label: z.Label}
	}
	return out
}
