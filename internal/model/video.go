package model

import "time"

// Video represents an uploaded video record.
type Video struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	FilePath     string    `json:"filepath"`
	FileSize     int64     `json:"filesize"`
	CreatedAt    time.Time `json:"created_at"`
}

// CountRecord is one logged occupancy sample for a zone.
type CountRecord struct {
	ID        int64     `json:"id"`
	VideoID   int64     `json:"video_id"`
	ZoneID    string    `json:"zone_id"`
	Label     string    `json:"label"`
	Current   int       `json:"current"`
	Peak      int       `json:"peak"`
	Timestamp time.Time `json:"ts"`
}

// VideoStats summarizes stored videos and their logged counts.
type VideoStats struct {
	TotalVideos    int           `json:"total_videos"`
	TotalSizeBytes int64         `json:"total_size_bytes"`
	CountRows      int           `json:"count_rows"`
	PerVideo       map[int64]int `json:"per_video"` // count rows per video id
}
