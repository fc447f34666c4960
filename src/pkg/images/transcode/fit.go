package transcode

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Target is a named bounding box a variant has to fit into.
type Target struct {
	Name   string
	Width  int
	Height int
}

// Targets are the breakpoints every ingestion produces.
var Targets = []Target{
	{Name: "phone", Width: 640, Height: 1136},
	{Name: "tablet", Width: 1536, Height: 2048},
	{Name: "desktop", Width: 1920, Height: 1080},
}

// IsTarget reports whether name is one of the named breakpoints.
func IsTarget(name string) bool {
	for _, t := range Targets {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Fit returns the dimensions of a w×h image scaled to fit inside the box while
// keeping its aspect ratio. Images already inside the box keep their size.
func Fit(w, h, boxW, boxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= boxW && h <= boxH {
		return w, h
	}

	scale := math.Min(float64(boxW)/float64(w), float64(boxH)/float64(h))
	nw := clamp(int(math.Round(float64(w)*scale)), 1, boxW)
	nh := clamp(int(math.Round(float64(h)*scale)), 1, boxH)
	return nw, nh
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resize(src image.Image, t Target) image.Image {
	b := src.Bounds()
	nw, nh := Fit(b.Dx(), b.Dy(), t.Width, t.Height)
	if nw == b.Dx() && nh == b.Dy() {
		return src
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
