package dto

import (
	"time"

	"zonecounter/internal/counting"
	"zonecounter/internal/model"
	"zonecounter/internal/tracking"
)

// Source kinds accepted by POST /api/detection/start.
const (
	SourceFile   = "file"
	SourceWebcam = "webcam"
	SourceCamera = "camera"
)

// StartDetectionRequest selects what the loop reads frames from.
type StartDetectionRequest struct {
	Source string `json:"source"`
	File   string `json:"file,omitempty"`
	Device int    `json:"device,omitempty"`
	Camera string `json:"camera,omitempty"`
}

// DetectionStatus describes the running loop.
type DetectionStatus struct {
	State        string `json:"state"`
	Source       string `json:"source,omitempty"`
	File         string `json:"file,omitempty"`
	Paused       bool   `json:"paused"`
	Frames       int    `json:"frames"`
	TotalEntries int    `json:"total_entries"`
}

// CycleEvent is broadcast to viewers after every detection cycle.
type CycleEvent struct {
	Type         string               `json:"type"`
	Timestamp    time.Time            `json:"ts"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	Image        string               `json:"image,omitempty"` // base64 JPEG
	Detections   []model.Detection    `json:"detections"`
	Tracks       []tracking.Track     `json:"tracks"`
	Entries      []counting.Entry     `json:"entries"`
	Zones        []counting.ZoneStats `json:"zones"`
	TotalEntries int                  `json:"total_entries"`
}

// SeriesResponse is returned by GET /api/series.
type SeriesResponse struct {
	Zones        []counting.ZoneStats `json:"zones"`
	TotalEntries int                  `json:"total_entries"`
}
