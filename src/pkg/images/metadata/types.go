package metadata

// ImageMetadata is the camera and location information embedded in an
// uploaded image. Every field is optional.
type ImageMetadata struct {
	CameraMake  string       `json:"cameraMake,omitempty"`
	CameraModel string       `json:"cameraModel,omitempty"`
	GeoLocation *GeoLocation `json:"geoLocation,omitempty"`
}

// GeoLocation holds signed decimal degrees. South and West are negative.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsEmpty reports whether no tag was found.
func (m *ImageMetadata) IsEmpty() bool {
	return m == nil || (m.CameraMake == "" && m.CameraModel == "" && m.GeoLocation == nil)
}

// Rational is an unsigned EXIF RATIONAL value.
type Rational struct {
	Numerator   int64
	Denominator int64
}

func (r Rational) Float() (float64, bool) {
	if r.Denominator == 0 {
		return 0, false
	}
	return float64(r.Numerator) / float64(r.Denominator), true
}
