package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveExtension(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		wantExt     string
		wantOK      bool
	}{
		{"png by name", "photo.png", "", "png", true},
		{"upper case name", "photo.PNG", "", "png", true},
		{"jpg by name", "a.jpg", "", "jpg", true},
		{"jpeg by name", "a.JPEG", "", "jpeg", true},
		{"gif by name", "anim.gif", "", "gif", true},
		{"webp by name", "x.webp", "", "webp", true},
		{"bmp by name", "x.bmp", "", "bmp", true},
		{"last dot wins", "archive.tar.png", "", "png", true},
		{"name wins over content type", "photo.gif", "image/png", "gif", true},
		{"disallowed name does not fall back", "file.txt", "image/png", "", false},
		{"trailing dot does not fall back", "file.", "image/png", "", false},
		{"png by content type", "", "image/png", "png", true},
		{"jpeg content type resolves to jpg", "", "image/jpeg", "jpg", true},
		{"gif by content type", "", "image/gif", "gif", true},
		{"webp by content type", "", "image/webp", "webp", true},
		{"bmp by content type", "", "image/bmp", "bmp", true},
		{"name without dot uses content type", "blob", "image/png", "png", true},
		{"content type must match exactly", "", "image/PNG", "", false},
		{"content type with params", "", "image/png; q=1", "", false},
		{"svg rejected", "", "image/svg+xml", "", false},
		{"svg name rejected", "logo.svg", "", "", false},
		{"nothing supplied", "", "", "", false},
		{"name without dot and no content type", "blob", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := ResolveExtension(tt.filename, tt.contentType)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestResolveExtensionAllowList(t *testing.T) {
	for _, at := range allowedTypes {
		ext, ok := ResolveExtension("image."+at.ext, "")
		assert.True(t, ok)
		assert.Equal(t, at.ext, ext)

		ext, ok = ResolveExtension("", at.mime)
		assert.True(t, ok)
		assert.Equal(t, at.mime, MimeForExtension(ext))
	}
}

func TestMimeForExtension(t *testing.T) {
	assert.Equal(t, "image/png", MimeForExtension("png"))
	assert.Equal(t, "image/jpeg", MimeForExtension("jpg"))
	assert.Equal(t, "image/jpeg", MimeForExtension("jpeg"))
	assert.Equal(t, "", MimeForExtension("PNG"))
	assert.Equal(t, "", MimeForExtension("tiff"))
	assert.True(t, IsAllowedMime("image/webp"))
	assert.False(t, IsAllowedMime("image/tiff"))
}
