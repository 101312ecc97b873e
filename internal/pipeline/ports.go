package pipeline

import (
	"context"
	"errors"
	"time"

	"zonecounter/internal/dto"
	"zonecounter/internal/model"
)

var (
	// ErrSourceEnded is returned by Capture once a finite source has no frames left.
	ErrSourceEnded = errors.New("pipeline: source ended")
	// ErrNoFrame is returned by Capture when a live source has nothing new yet.
	ErrNoFrame = errors.New("pipeline: no new frame")
	// ErrNotRunning is returned when an operation needs a running loop.
	ErrNotRunning = errors.New("pipeline: loop not running")
	// ErrZoneNotFound is returned by zone edits on an unknown id.
	ErrZoneNotFound = errors.New("pipeline: zone not found")
)

// Frame is one captured image, JPEG encoded.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// SourceStatus tells the loop whether a tick may read a frame.
type SourceStatus struct {
	Paused bool
	Ended  bool
	// Live sources (webcams, network cameras) are never deferred.
	Live bool
}

// Deferred reports whether the tick should do nothing.
func (s SourceStatus) Deferred() bool {
	return (s.Paused || s.Ended) && !s.Live
}

// Source produces frames for the loop.
type Source interface {
	Name() string
	Status() SourceStatus
	// Skip advances past one frame without decoding it.
	Skip() error
	Capture(ctx context.Context) (Frame, error)
	Close() error
}

// Pausable is implemented by sources that can be paused by the operator.
type Pausable interface {
	Pause()
	Resume()
}

// Detector finds objects in a frame. Score filtering belongs to the detector.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]model.Detection, error)
}

// CountsReporter receives the periodic occupancy snapshot.
type CountsReporter interface {
	LogCounts(ctx context.Context, req dto.LogCountsRequest) error
}

// ZonesReporter receives the zone list after edits.
type ZonesReporter interface {
	SaveZones(ctx context.Context, req dto.SaveZonesRequest) error
}
