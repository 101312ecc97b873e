// Package video reads frames from uploaded video files and local webcams.
package video

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"zonecounter/internal/pipeline"

	"gocv.io/x/gocv"
)

// CaptureSource is a pipeline.Source backed by gocv.VideoCapture.
// File sources can be paused and end at EOF; webcams are live.
type CaptureSource struct {
	name string
	live bool

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	frames  int // frame count of a file, 0 when unknown
	paused  bool
	ended   bool
	closed  bool
}

// OpenFile opens a video file.
func OpenFile(path string) (*CaptureSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: not opened", path)
	}
	return &CaptureSource{
		name:    filepath.Base(path),
		capture: capture,
		mat:     gocv.NewMat(),
		frames:  int(capture.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// OpenDevice opens a local camera by index.
func OpenDevice(device int) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open device %d: not opened", device)
	}
	return &CaptureSource{
		name:    fmt.Sprintf("webcam:%d", device),
		live:    true,
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

func (s *CaptureSource) Name() string { return s.name }

func (s *CaptureSource) Status() pipeline.SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pipeline.SourceStatus{Paused: s.paused, Ended: s.ended, Live: s.live}
}

// Pause stops frame consumption of a file source. No-op for webcams.
func (s *CaptureSource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		s.paused = true
	}
}

func (s *CaptureSource) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Skip grabs one frame without decoding it.
func (s *CaptureSource) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ended {
		return pipeline.ErrSourceEnded
	}
	s.capture.Grab(1)
	if s.frames > 0 && int(s.capture.Get(gocv.VideoCapturePosFrames)) >= s.frames {
		s.ended = true
		return pipeline.ErrSourceEnded
	}
	return nil
}

// Capture decodes the next frame and returns it JPEG encoded.
func (s *CaptureSource) Capture(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ended {
		return pipeline.Frame{}, pipeline.ErrSourceEnded
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		if s.live {
			return pipeline.Frame{}, fmt.Errorf("read %s: no frame", s.name)
		}
		s.ended = true
		return pipeline.Frame{}, pipeline.ErrSourceEnded
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return pipeline.Frame{
		Data:      data,
		Width:     s.mat.Cols(),
		Height:    s.mat.Rows(),
		Timestamp: time.Now(),
	}, nil
}

// Close releases the capture device. Safe to call more than once.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.capture.Close()
}
