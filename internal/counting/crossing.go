package counting

import (
	"zonecounter/internal/model"
	"zonecounter/internal/tracking"
)

// Markers records, per identity, the zones it has already been counted for.
type Markers map[int]map[string]bool

// Has reports whether identity id has been counted for zoneID.
func (m Markers) Has(id int, zoneID string) bool {
	return m[id][zoneID]
}

// Set marks identity id as counted for zoneID.
func (m Markers) Set(id int, zoneID string) {
	zones, ok := m[id]
	if !ok {
		zones = make(map[string]bool)
		m[id] = zones
	}
	zones[zoneID] = true
}

// Clear removes the mark of identity id for zoneID.
func (m Markers) Clear(id int, zoneID string) {
	if zones, ok := m[id]; ok {
		delete(zones, zoneID)
	}
}

// ForgetZone removes zoneID from every identity.
func (m Markers) ForgetZone(zoneID string) {
	for _, zones := range m {
		delete(zones, zoneID)
	}
}

// Entry is one counted zone entry.
type Entry struct {
	TrackID int    `json:"track_id"`
	ZoneID  string `json:"zone_id"`
}

// Frame carries the pixel size the centroids are normalized against.
type Frame struct {
	Width  int
	Height int
}

// PreviousFunc looks up an identity in the previous cycle's active set.
type PreviousFunc func(id int) (tracking.Track, bool)

// DetectEntries finds outside-to-inside transitions and counts each one whose
// identity has not been counted for that zone yet. Tracks with no previous
// counterpart are skipped: a subject first seen inside a zone is not an entry.
func DetectEntries(tracks []tracking.Track, previous PreviousFunc, zones []model.Zone, frame Frame, markers Markers, state *State) []Entry {
	var entries []Entry
	recount := state.Config().RecountOnReentry

	for _, t := range tracks {
		prev, ok := previous(t.ID)
		if !ok {
			continue
		}
		cur := t.Box.NormalizedCentroid(frame.Width, frame.Height)
		was := prev.Box.NormalizedCentroid(frame.Width, frame.Height)

		for _, z := range zones {
			wasIn := z.Contains(was)
			isIn := z.Contains(cur)

			if !isIn {
				if recount {
					markers.Clear(t.ID, z.ID)
				}
				continue
			}
			if wasIn || markers.Has(t.ID, z.ID) {
				continue
			}
			state.RecordEntry(z.ID)
			markers.Set(t.ID, z.ID)
			entries = append(entries, Entry{TrackID: t.ID, ZoneID: z.ID})
		}
	}
	return entries
}

// Occupancy counts, per zone, the active tracks whose current centroid is inside.
// Every zone gets an entry, zero included.
func Occupancy(tracks []tracking.Track, zones []model.Zone, frame Frame) map[string]int {
	counts := make(map[string]int, len(zones))
	for _, z := range zones {
		counts[z.ID] = 0
	}
	for _, t := range tracks {
		p := t.Box.NormalizedCentroid(frame.Width, frame.Height)
		for _, z := range zones {
			if z.Contains(p) {
				counts[z.ID]++
			}
		}
	}
	return counts
}
