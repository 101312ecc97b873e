package model

// PersonLabel is the detector class the counting pipeline keeps.
const PersonLabel = "person"

// BBox is a bounding box in frame pixels.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Centroid returns the box centre in pixels.
func (b BBox) Centroid() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// NormalizedCentroid returns the box centre divided by the frame size.
// Non-positive frame dimensions are treated as 1.
func (b BBox) NormalizedCentroid(frameWidth, frameHeight int) Point {
	w, h := float64(frameWidth), float64(frameHeight)
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	cx, cy := b.Centroid()
	return Point{X: cx / w, Y: cy / h}
}

// Detection is one detector output for one frame.
type Detection struct {
	Box   BBox    `json:"bbox"`
	Label string  `json:"class"`
	Score float64 `json:"score"`
}

// FilterLabel keeps detections whose label equals label, preserving order.
func FilterLabel(detections []Detection, label string) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}
