package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// TagSource gives read access to the tags of one image.
type TagSource interface {
	String(name exif.FieldName) (string, bool)
	Rationals(name exif.FieldName) ([]Rational, bool)
}

var errIncompleteCoordinate = errors.New("coordinate needs degrees, minutes and seconds")

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the EXIF profile from the encoded image bytes. It never fails:
// a missing, unreadable or malformed profile yields an empty record.
func (e *Extractor) Extract(data []byte) *ImageMetadata {
	tiff, locateErr := locateTIFF(data)
	if locateErr != nil {
		slog.Debug("No EXIF profile found", "error", locateErr)
		return &ImageMetadata{}
	}
	if checkErr := checkTIFF(tiff); checkErr != nil {
		slog.Warn("Ignoring malformed EXIF profile", "error", checkErr)
		return &ImageMetadata{}
	}

	x, err := exif.Decode(bytes.NewReader(tiff))
	if err != nil {
		slog.Debug("No EXIF profile found", "error", err)
		return &ImageMetadata{}
	}
	return e.FromTags(&exifSource{x: x})
}

// FromTags builds the record from an already parsed tag source.
func (e *Extractor) FromTags(src TagSource) *ImageMetadata {
	result := &ImageMetadata{}
	if src == nil {
		return result
	}

	result.CameraMake, _ = src.String(exif.Make)
	result.CameraModel, _ = src.String(exif.Model)
	slog.Debug("Read camera tags", "make", result.CameraMake, "model", result.CameraModel)

	location, locErr := readGeoLocation(src)
	if locErr != nil {
		slog.Debug("Geolocation omitted", "error", locErr)
	}
	result.GeoLocation = location

	return result
}

func readGeoLocation(src TagSource) (location *GeoLocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			location = nil
			err = fmt.Errorf("reading GPS tags: %v", r)
		}
	}()

	lat, latOk := src.Rationals(exif.GPSLatitude)
	latRef, latRefOk := src.String(exif.GPSLatitudeRef)
	lon, lonOk := src.Rationals(exif.GPSLongitude)
	lonRef, lonRefOk := src.String(exif.GPSLongitudeRef)
	if !latOk || !lonOk || !latRefOk || !lonRefOk || latRef == "" || lonRef == "" {
		return nil, nil
	}

	latitude, err := ToDecimalDegrees(lat, latRef)
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	longitude, err := ToDecimalDegrees(lon, lonRef)
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}

	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("coordinate out of range: %f, %f", latitude, longitude)
	}

	return &GeoLocation{Latitude: latitude, Longitude: longitude}, nil
}

// ToDecimalDegrees converts a degrees/minutes/seconds triplet to decimal
// degrees, negating it for the "S" and "W" hemisphere references.
func ToDecimalDegrees(dms []Rational, ref string) (float64, error) {
	if len(dms) < 3 {
		return 0, errIncompleteCoordinate
	}

	var parts [3]float64
	for i := range parts {
		v, ok := dms[i].Float()
		if !ok {
			return 0, fmt.Errorf("component %d has a zero denominator", i)
		}
		parts[i] = v
	}

	value := parts[0] + parts[1]/60.0 + parts[2]/3600.0
	if ref == "S" || ref == "W" {
		value = -value
	}
	return value, nil
}

type exifSource struct {
	x *exif.Exif
}

func (s *exifSource) String(name exif.FieldName) (string, bool) {
	tag, err := s.x.Get(name)
	if err != nil {
		return "", false
	}
	value, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(value, "\x00")), true
}

func (s *exifSource) Rationals(name exif.FieldName) ([]Rational, bool) {
	tag, err := s.x.Get(name)
	if err != nil {
		return nil, false
	}

	values := make([]Rational, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		num, den, ratErr := tag.Rat2(i)
		if ratErr != nil {
			return nil, false
		}
		values = append(values, Rational{Numerator: num, Denominator: den})
	}
	return values, true
}
