package model

import "math"

// DefaultZoneLabel is used when a zone is created without a label.
const DefaultZoneLabel = "Zone"

// Point is a position in normalized frame coordinates, each axis in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Zone is an axis-aligned rectangle stored as its four normalized corners.
// After Normalize, TopLeft.X <= BottomRight.X and TopLeft.Y <= BottomRight.Y.
type Zone struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	TopLeft     Point  `json:"topleft"`
	TopRight    Point  `json:"topright"`
	BottomLeft  Point  `json:"bottomleft"`
	BottomRight Point  `json:"bottomright"`
}

// NewZone builds a zone from two opposite corners given in any order.
func NewZone(id, label string, a, b Point) Zone {
	if label == "" {
		label = DefaultZoneLabel
	}
	z := Zone{ID: id, Label: label}
	z.setBounds(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Max(a.X, b.X), math.Max(a.Y, b.Y))
	return z
}

// Normalize rebuilds the corners from the min/max of all four stored corners,
// clamped to [0,1]. Zones loaded from disk go through it before use.
func (z Zone) Normalize() Zone {
	xs := []float64{z.TopLeft.X, z.TopRight.X, z.BottomLeft.X, z.BottomRight.X}
	ys := []float64{z.TopLeft.Y, z.TopRight.Y, z.BottomLeft.Y, z.BottomRight.Y}
	if z.Label == "" {
		z.Label = DefaultZoneLabel
	}
	z.setBounds(minOf(xs), minOf(ys), maxOf(xs), maxOf(ys))
	return z
}

func (z *Zone) setBounds(minX, minY, maxX, maxY float64) {
	minX, minY, maxX, maxY = clamp01(minX), clamp01(minY), clamp01(maxX), clamp01(maxY)
	z.TopLeft = Point{X: minX, Y: minY}
	z.TopRight = Point{X: maxX, Y: minY}
	z.BottomLeft = Point{X: minX, Y: maxY}
	z.BottomRight = Point{X: maxX, Y: maxY}
}

// Contains reports whether p lies inside the zone, bounds inclusive.
func (z Zone) Contains(p Point) bool {
	return p.X >= z.TopLeft.X && p.X <= z.TopRight.X &&
		p.Y >= z.TopLeft.Y && p.Y <= z.BottomLeft.Y
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = math.Max(m, x)
	}
	return m
}
