// Package tracking turns per-frame person detections into identities that
// persist across frames.
//
// Association is greedy nearest-centroid: every current detection picks the
// closest previous track on its own, and several detections may pick the same
// previous track. When that happens they all inherit its id. This is a known
// limitation kept on purpose; an optimal (bipartite) assignment changes which
// subjects get counted and needs a product decision first.
package tracking

import "zonecounter/internal/model"

// DefaultMaxDistanceSq is the association gate in squared frame pixels.
const DefaultMaxDistanceSq = 2000.0

// Track is one identity in the active set of a cycle.
type Track struct {
	ID  int        `json:"id"`
	Box model.BBox `json:"bbox"`
	// New is true when the id was assigned in this cycle.
	New bool `json:"new"`
}

// Config holds tracker tuning.
type Config struct {
	// MaxDistanceSq is the exclusive upper bound on squared centroid distance
	// for a detection to inherit a previous track's id.
	MaxDistanceSq float64
}

// Tracker keeps the previous and current active sets. It is not safe for
// concurrent use; the owning session serializes calls.
type Tracker struct {
	maxDistSq float64
	nextID    int
	previous  []Track
	active    []Track
}

// NewTracker creates a tracker. A non-positive gate falls back to DefaultMaxDistanceSq.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxDistanceSq <= 0 {
		cfg.MaxDistanceSq = DefaultMaxDistanceSq
	}
	return &Tracker{maxDistSq: cfg.MaxDistanceSq, nextID: 1}
}

// Update associates the current detections with the previous active set and
// returns the new active set, one track per detection, in detection order.
//
// Candidates are scanned in the order of the previous active set, and only a
// strictly smaller distance replaces the best so far, so ties resolve to the
// earliest previous track.
func (t *Tracker) Update(detections []model.Detection) []Track {
	t.previous = t.active
	next := make([]Track, 0, len(detections))

	for _, det := range detections {
		cx, cy := det.Box.Centroid()

		best := -1
		bestDist := 0.0
		for i, prev := range t.previous {
			px, py := prev.Box.Centroid()
			d := (px-cx)*(px-cx) + (py-cy)*(py-cy)
			if best == -1 || d < bestDist {
				best, bestDist = i, d
			}
		}

		if best >= 0 && bestDist < t.maxDistSq {
			next = append(next, Track{ID: t.previous[best].ID, Box: det.Box})
			continue
		}

		next = append(next, Track{ID: t.nextID, Box: det.Box, New: true})
		t.nextID++
	}

	t.active = next
	return t.Active()
}

// Previous returns the first track in the previous active set with the given id.
func (t *Tracker) Previous(id int) (Track, bool) {
	for _, p := range t.previous {
		if p.ID == id {
			return p, true
		}
	}
	return Track{}, false
}

// Active returns a copy of the current active set.
func (t *Tracker) Active() []Track {
	out := make([]Track, len(t.active))
	copy(out, t.active)
	return out
}

// NextID is the id the next unmatched detection will receive.
func (t *Tracker) NextID() int {
	return t.nextID
}
