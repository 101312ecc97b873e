package repository

import (
	"zonecounter/internal/model"
)

// VideoRepository defines the interface for uploaded video records.
type VideoRepository interface {
	// Create operations
	Insert(v *model.Video) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Video, error)
	GetByFilename(filename string) (*model.Video, error)
	GetAll() ([]model.Video, error)
	GetLatest() (*model.Video, error)
	GetStats() (*model.VideoStats, error)

	// Delete operations
	Delete(id int64) error
}

// ZoneRepository stores the zone layout saved for each video.
type ZoneRepository interface {
	// ReplaceForVideo deletes the video's zones and inserts zones in one
	// transaction, returning how many rows were inserted.
	ReplaceForVideo(videoID int64, zones []model.Zone) (int, error)
	GetByVideoID(videoID int64) ([]model.Zone, error)
}

// CountRepository stores logged occupancy samples.
type CountRepository interface {
	InsertBatch(records []model.CountRecord) error
	GetByVideoID(videoID int64, limit int) ([]model.CountRecord, error)
	DeleteByVideoID(videoID int64) error
}
