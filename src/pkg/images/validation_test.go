package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidSize(t *testing.T) {
	for _, ok := range []string{"phone", "tablet", "desktop", "PHONE", "Desktop", "320", "1.5", "-4"} {
		assert.True(t, IsValidSize(ok), ok)
	}
	for _, bad := range []string{"huge", "", "NaN", "Inf", "320px", "metadata"} {
		assert.False(t, IsValidSize(bad), bad)
	}
}

func TestContentTypeForFile(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeForFile("a.JPG"))
	assert.Equal(t, "image/jpeg", ContentTypeForFile("a.jpeg"))
	assert.Equal(t, "image/png", ContentTypeForFile("/tmp/x/a.png"))
	assert.Equal(t, "image/webp", ContentTypeForFile("a.webp"))
	assert.Empty(t, ContentTypeForFile("a.gif"))
}

func TestAllowLists(t *testing.T) {
	assert.True(t, IsAllowedExtension("photo.JpEg"))
	assert.False(t, IsAllowedExtension("photo.jpeg.exe"))
	assert.True(t, IsAllowedContentType(" image/PNG "))
	assert.False(t, IsAllowedContentType("image/gif"))
}
