package transcode

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFit(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		boxW, boxH   int
		wantW, wantH int
	}{
		{"landscape into desktop", 4000, 3000, 1920, 1080, 1440, 1080},
		{"portrait into phone", 3000, 4000, 640, 1136, 640, 853},
		{"wide panorama into phone", 6000, 1000, 640, 1136, 640, 107},
		{"exact box", 1920, 1080, 1920, 1080, 1920, 1080},
		{"smaller than box", 300, 200, 640, 1136, 300, 200},
		{"one pixel line", 10000, 1, 640, 1136, 640, 1},
		{"empty", 0, 0, 640, 1136, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := Fit(tc.w, tc.h, tc.boxW, tc.boxH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestFitNeverUpscalesAndKeepsAspect(t *testing.T) {
	sizes := [][2]int{{1, 1}, {17, 3000}, {640, 1137}, {5000, 5000}, {2048, 1536}, {1919, 1081}, {12000, 800}}
	for _, s := range sizes {
		for _, target := range Targets {
			w, h := Fit(s[0], s[1], target.Width, target.Height)
			assert.LessOrEqual(t, w, s[0])
			assert.LessOrEqual(t, h, s[1])
			assert.LessOrEqual(t, w, target.Width)
			assert.LessOrEqual(t, h, target.Height)

			in := float64(s[0]) / float64(s[1])
			out := float64(w) / float64(h)
			// One pixel of rounding on the short edge bounds the ratio error.
			tolerance := in/float64(min(w, h)) + 1e-9
			assert.InDelta(t, in, out, tolerance, "%dx%d into %s", s[0], s[1], target.Name)
		}
	}
}

func TestResizeReturnsSourceWhenItFits(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	assert.Same(t, src, resize(src, Targets[0]))

	big := image.NewRGBA(image.Rect(0, 0, 4000, 2000))
	out := resize(big, Target{Name: "x", Width: 400, Height: 400})
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
}

func TestIsTarget(t *testing.T) {
	assert.True(t, IsTarget("phone"))
	assert.True(t, IsTarget("tablet"))
	assert.True(t, IsTarget("desktop"))
	assert.False(t, IsTarget("Phone"))
	assert.False(t, IsTarget("huge"))
}
