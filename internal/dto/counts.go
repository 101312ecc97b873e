package dto

// ZoneCount is the per-zone value pushed to /log_counts.
type ZoneCount struct {
	Current int    `json:"current"`
	Peak    int    `json:"peak"`
	Label   string `json:"label"`
}

// LogCountsRequest is the body of POST /log_counts, keyed by zone id.
type LogCountsRequest struct {
	File   string               `json:"file"`
	Counts map[string]ZoneCount `json:"counts"`
}

// LogCountsResponse sums the pushed snapshot.
type LogCountsResponse struct {
	OK           bool `json:"ok"`
	TotalCurrent int  `json:"total_current"`
	TotalPeak    int  `json:"total_peak"`
}
