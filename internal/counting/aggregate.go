package counting

import (
	"time"

	"zonecounter/internal/model"
)

// DefaultSampleInterval is the minimum spacing between series samples.
const DefaultSampleInterval = time.Second

// Config holds the aggregate and crossing tuning.
type Config struct {
	SeriesCapacity int
	SampleInterval time.Duration
	// RecountOnReentry clears an identity's marker for a zone whenever that
	// identity is seen outside the zone, so leaving and coming back counts again.
	RecountOnReentry bool
}

// ZoneAggregate is the derived state of one zone.
type ZoneAggregate struct {
	Total   int
	Current int
	Peak    int
	series  *Series
}

// ZoneStats is a copy of one zone's aggregate, safe to hand to other goroutines.
type ZoneStats struct {
	ZoneID  string        `json:"id"`
	Label   string        `json:"label"`
	Total   int           `json:"total"`
	Current int           `json:"current"`
	Peak    int           `json:"peak"`
	Series  []SeriesPoint `json:"series"`
}

// State holds the aggregates of every observed zone.
type State struct {
	cfg        Config
	zones      map[string]*ZoneAggregate
	lastSample time.Time
}

// NewState creates an empty aggregate state, filling in defaults.
func NewState(cfg Config) *State {
	if cfg.SeriesCapacity <= 0 {
		cfg.SeriesCapacity = DefaultSeriesCapacity
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	return &State{cfg: cfg, zones: make(map[string]*ZoneAggregate)}
}

// Config returns the effective configuration.
func (s *State) Config() Config {
	return s.cfg
}

// Observe makes sure zoneID has an aggregate, creating a zeroed one on first sight.
func (s *State) Observe(zoneID string) *ZoneAggregate {
	agg, ok := s.zones[zoneID]
	if !ok {
		agg = &ZoneAggregate{series: NewSeries(s.cfg.SeriesCapacity)}
		s.zones[zoneID] = agg
	}
	return agg
}

// RecordCycle stores this cycle's occupancy and raises the peak if needed.
func (s *State) RecordCycle(zoneID string, current int) {
	agg := s.Observe(zoneID)
	agg.Current = current
	if current > agg.Peak {
		agg.Peak = current
	}
}

// RecordEntry adds one entry to the zone's cumulative total.
func (s *State) RecordEntry(zoneID string) {
	s.Observe(zoneID).Total++
}

// SampleSeries appends one point per zone when at least the sample interval
// has passed since the previous sample. It reports whether it sampled.
// Series carry no label of their own; Stats pairs them with the zone's current label.
func (s *State) SampleSeries(now time.Time, zones []model.Zone) bool {
	if !s.lastSample.IsZero() && now.Sub(s.lastSample) < s.cfg.SampleInterval {
		return false
	}
	s.lastSample = now

	for _, z := range zones {
		agg := s.Observe(z.ID)
		agg.series.Append(SeriesPoint{Timestamp: now, Value: agg.Total})
	}
	return true
}

// Remove drops a zone's aggregate and series.
func (s *State) Remove(zoneID string) {
	delete(s.zones, zoneID)
}

// Has reports whether the zone has an aggregate.
func (s *State) Has(zoneID string) bool {
	_, ok := s.zones[zoneID]
	return ok
}

// Stats returns a copy of one zone's aggregate.
func (s *State) Stats(zone model.Zone) ZoneStats {
	agg, ok := s.zones[zone.ID]
	if !ok {
		return ZoneStats{ZoneID: zone.ID, Label: zone.Label, Series: []SeriesPoint{}}
	}
	return ZoneStats{
		ZoneID:  zone.ID,
		Label:   zone.Label,
		Total:   agg.Total,
		Current: agg.Current,
		Peak:    agg.Peak,
		Series:  agg.series.Points(),
	}
}

// Snapshot returns stats for the given zones, in the same order.
func (s *State) Snapshot(zones []model.Zone) []ZoneStats {
	out := make([]ZoneStats, 0, len(zones))
	for _, z := range zones {
		out = append(out, s.Stats(z))
	}
	return out
}

// TotalEntries sums the cumulative totals of every zone.
func (s *State) TotalEntries() int {
	sum := 0
	for _, agg := range s.zones {
		sum += agg.Total
	}
	return sum
}
