package ai

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"zonecounter/internal/config"
	"zonecounter/internal/logger"
	"zonecounter/internal/model"
	"zonecounter/internal/pipeline"

	"gocv.io/x/gocv"
)

// DefaultScoreThreshold is used when the config leaves DetectionScore unset.
const DefaultScoreThreshold = 0.5

var (
	boxColor   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	zoneColor  = color.RGBA{R: 0, G: 160, B: 255, A: 0}
	trackColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// DetectorService runs an SSD MobileNet COCO network on JPEG frames.
type DetectorService struct {
	net        gocv.Net
	ready      bool
	threshold  float32
	modelPath  string
	configPath string
	logger     *logger.Logger

	mu sync.Mutex // gocv.Net is not safe for concurrent Forward calls
}

// NewDetectorService creates a detector with model/config paths and a logger.
// It attempts to initialize the underlying DNN network; Detect fails until it is.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) *DetectorService {
	threshold := cfg.DetectionScore
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	service := &DetectorService{
		threshold:  float32(threshold),
		modelPath:  cfg.ModelPath,
		configPath: cfg.ConfigPath,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		service.logger.Warning("Could not initialize detection network: %v", err)
		return service
	}

	return service
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", s.configPath)
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.ready = true
	s.logger.Info("Detection network initialized successfully")
	return nil
}

// Ready reports whether the network loaded.
func (s *DetectorService) Ready() bool {
	return s.ready
}

// Detect runs the network on the frame and returns detections above the
// score threshold with boxes in frame pixels.
func (s *DetectorService) Detect(ctx context.Context, frame pipeline.Frame) ([]model.Detection, error) {
	if !s.ready {
		return nil, fmt.Errorf("detection network not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	// SSD COCO input: 300x300, scaled to [-1,1], RGB
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	// Each row: [batch_id, class_id, confidence, x1, y1, x2, y2], corners normalized
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	detections := make([]model.Detection, 0)
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence <= s.threshold {
			continue
		}
		detections = append(detections, toDetection(
			int(rows.GetFloatAt(i, 1)), confidence,
			rows.GetFloatAt(i, 3), rows.GetFloatAt(i, 4),
			rows.GetFloatAt(i, 5), rows.GetFloatAt(i, 6),
			mat.Cols(), mat.Rows(),
		))
	}

	s.logger.Debug("Detected %d objects", len(detections))
	return detections, nil
}

func toDetection(classID int, confidence, x1, y1, x2, y2 float32, cols, rows int) model.Detection {
	x := float64(x1) * float64(cols)
	y := float64(y1) * float64(rows)
	return model.Detection{
		Box: model.BBox{
			X:      x,
			Y:      y,
			Width:  float64(x2)*float64(cols) - x,
			Height: float64(y2)*float64(rows) - y,
		},
		Label: getClassLabel(classID),
		Score: float64(confidence),
	}
}

// Annotate draws zones with their live counts, person boxes and track ids on
// the JPEG frame and returns the re-encoded JPEG.
func (s *DetectorService) Annotate(img []byte, result pipeline.CycleResult, zones []model.Zone) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	w, h := float64(mat.Cols()), float64(mat.Rows())
	current := make(map[string]int, len(result.Zones))
	for _, z := range result.Zones {
		current[z.ZoneID] = z.Current
	}

	for _, z := range zones {
		rect := image.Rect(int(z.TopLeft.X*w), int(z.TopLeft.Y*h), int(z.BottomRight.X*w), int(z.BottomRight.Y*h))
		if err := gocv.Rectangle(&mat, rect, zoneColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw zone: %w", err)
		}
		label := fmt.Sprintf("%s: %d", z.Label, current[z.ID])
		if err := gocv.PutText(&mat, label, image.Pt(rect.Min.X+4, rect.Min.Y+16), gocv.FontHersheySimplex, 0.5, zoneColor, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	for _, d := range result.Detections {
		rect := image.Rect(int(d.Box.X), int(d.Box.Y), int(d.Box.X+d.Box.Width), int(d.Box.Y+d.Box.Height))
		if err := gocv.Rectangle(&mat, rect, boxColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}

	for _, t := range result.Tracks {
		cx, cy := t.Box.Centroid()
		pt := image.Pt(int(cx), int(cy))
		if err := gocv.Circle(&mat, pt, 3, trackColor, -1); err != nil {
			return nil, fmt.Errorf("failed to draw track: %w", err)
		}
		if err := gocv.PutText(&mat, fmt.Sprintf("#%d", t.ID), image.Pt(pt.X+5, pt.Y-5), gocv.FontHersheySimplex, 0.5, trackColor, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())

	return out, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	s.ready = false
	return s.net.Close()
}

// getClassLabel maps COCO class IDs to labels.
func getClassLabel(classID int) string {
	labels := map[int]string{
		1:  model.PersonLabel,
		2:  "bicycle",
		3:  "car",
		4:  "motorcycle",
		5:  "airplane",
		6:  "bus",
		8:  "truck",
		16: "bird",
		17: "cat",
		18: "dog",
	}

	if label, exists := labels[classID]; exists {
		return label
	}
	return fmt.Sprintf("unknown%d", classID)
}
