package counting

import "time"

// DefaultSeriesCapacity is the number of samples kept per zone.
const DefaultSeriesCapacity = 60

// SeriesPoint is one sample of a zone's cumulative entry total.
type SeriesPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     int       `json:"value"`
}

// Series is a sliding window of samples; appending past capacity drops the oldest.
type Series struct {
	capacity int
	points   []SeriesPoint
}

// NewSeries creates an empty window. Non-positive capacity uses DefaultSeriesCapacity.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &Series{capacity: capacity, points: make([]SeriesPoint, 0, capacity)}
}

// Append adds p at the end, evicting from the front to stay within capacity.
func (s *Series) Append(p SeriesPoint) {
	if len(s.points) == s.capacity {
		copy(s.points, s.points[1:])
		s.points = s.points[:len(s.points)-1]
	}
	s.points = append(s.points, p)
}

// Points returns a copy of the samples, oldest first.
func (s *Series) Points() []SeriesPoint {
	out := make([]SeriesPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Len is the number of samples held.
func (s *Series) Len() int {
	return len(s.points)
}
