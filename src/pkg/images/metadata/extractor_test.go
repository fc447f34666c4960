package metadata

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTags struct {
	strings   map[exif.FieldName]string
	rationals map[exif.FieldName][]Rational
	panicOn   exif.FieldName
}

func (f *fakeTags) String(name exif.FieldName) (string, bool) {
	if name == f.panicOn {
		panic("corrupt tag")
	}
	v, ok := f.strings[name]
	return v, ok
}

func (f *fakeTags) Rationals(name exif.FieldName) ([]Rational, bool) {
	if name == f.panicOn {
		panic("corrupt tag")
	}
	v, ok := f.rationals[name]
	return v, ok
}

func dms(d, m, s int64) []Rational {
	return []Rational{{d, 1}, {m, 1}, {s, 1}}
}

func fullTags() *fakeTags {
	return &fakeTags{
		strings: map[exif.FieldName]string{
			exif.Make:            "Canon",
			exif.Model:           "EOS 5D",
			exif.GPSLatitudeRef:  "N",
			exif.GPSLongitudeRef: "W",
		},
		rationals: map[exif.FieldName][]Rational{
			exif.GPSLatitude:  dms(40, 26, 46),
			exif.GPSLongitude: dms(79, 58, 56),
		},
	}
}

func TestToDecimalDegrees(t *testing.T) {
	north, err := ToDecimalDegrees(dms(40, 26, 46), "N")
	require.NoError(t, err)
	assert.InDelta(t, 40.4461, north, 1e-4)

	south, err := ToDecimalDegrees(dms(40, 26, 46), "S")
	require.NoError(t, err)
	assert.Equal(t, -north, south)

	west, err := ToDecimalDegrees(dms(79, 58, 56), "W")
	require.NoError(t, err)
	assert.Less(t, west, 0.0)

	east, err := ToDecimalDegrees(dms(79, 58, 56), "E")
	require.NoError(t, err)
	assert.Equal(t, -west, east)
}

func TestToDecimalDegreesFractionalSeconds(t *testing.T) {
	value, err := ToDecimalDegrees([]Rational{{51, 1}, {30, 1}, {2625, 100}}, "N")
	require.NoError(t, err)
	assert.InDelta(t, 51.5072917, value, 1e-6)
}

func TestToDecimalDegreesReferenceIsCaseSensitive(t *testing.T) {
	value, err := ToDecimalDegrees(dms(10, 0, 0), "s")
	require.NoError(t, err)
	assert.Equal(t, 10.0, value)
}

func TestToDecimalDegreesRejectsShortTriplet(t *testing.T) {
	_, err := ToDecimalDegrees([]Rational{{40, 1}, {26, 1}}, "N")
	assert.Error(t, err)

	_, err = ToDecimalDegrees([]Rational{{40, 1}, {26, 0}, {1, 1}}, "N")
	assert.Error(t, err)
}

func TestFromTags(t *testing.T) {
	md := NewExtractor().FromTags(fullTags())

	assert.Equal(t, "Canon", md.CameraMake)
	assert.Equal(t, "EOS 5D", md.CameraModel)
	require.NotNil(t, md.GeoLocation)
	assert.InDelta(t, 40.4461, md.GeoLocation.Latitude, 1e-4)
	assert.InDelta(t, -79.9822, md.GeoLocation.Longitude, 1e-4)
}

func TestFromTagsOmitsIncompleteGeoLocation(t *testing.T) {
	for _, missing := range []exif.FieldName{exif.GPSLatitude, exif.GPSLongitude} {
		tags := fullTags()
		delete(tags.rationals, missing)
		md := NewExtractor().FromTags(tags)
		assert.Nil(t, md.GeoLocation, "missing %s", missing)
		assert.Equal(t, "Canon", md.CameraMake)
	}

	for _, missing := range []exif.FieldName{exif.GPSLatitudeRef, exif.GPSLongitudeRef} {
		tags := fullTags()
		delete(tags.strings, missing)
		md := NewExtractor().FromTags(tags)
		assert.Nil(t, md.GeoLocation, "missing %s", missing)
	}

	tags := fullTags()
	tags.rationals[exif.GPSLongitude] = []Rational{{79, 1}}
	assert.Nil(t, NewExtractor().FromTags(tags).GeoLocation)
}

func TestFromTagsSwallowsGeoLocationPanics(t *testing.T) {
	tags := fullTags()
	tags.panicOn = exif.GPSLatitude

	md := NewExtractor().FromTags(tags)
	assert.Nil(t, md.GeoLocation)
	assert.Equal(t, "EOS 5D", md.CameraModel)
}

func TestFromTagsWithoutCameraTags(t *testing.T) {
	md := NewExtractor().FromTags(&fakeTags{})
	assert.True(t, md.IsEmpty())
}

func TestExtractWithoutProfile(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	md := NewExtractor().Extract(buf.Bytes())
	require.NotNil(t, md)
	assert.True(t, md.IsEmpty())

	md = NewExtractor().Extract([]byte("not an image"))
	assert.True(t, md.IsEmpty())
}

func TestGeoLocationRange(t *testing.T) {
	tags := fullTags()
	tags.rationals[exif.GPSLatitude] = dms(95, 0, 0)
	assert.Nil(t, NewExtractor().FromTags(tags).GeoLocation)

	tags = fullTags()
	md := NewExtractor().FromTags(tags)
	assert.False(t, math.IsNaN(md.GeoLocation.Latitude))
}
