package wapps

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessImage(t *testing.T) {
	img, data, err := processImage(bytes.NewReader(testPNG(t, 2000, 1000)), "My Photo.png")
	require.NoError(t, err)
	assert.Equal(t, "my-photo.jpg", img.Filename)
	assert.Equal(t, "My Photo", img.Title)
	assert.Equal(t, "My Photo.png", img.OriginalName)
	assert.Equal(t, maxImageWidth, img.Width)
	assert.Equal(t, 800, img.Height)
	assert.Equal(t, len(data), img.Size)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, maxImageWidth, cfg.Width)

	small, _, err := processImage(bytes.NewReader(testPNG(t, 300, 200)), "???.png")
	require.NoError(t, err)
	assert.Equal(t, "image.jpg", small.Filename)
	assert.Equal(t, 300, small.Width)

	_, _, err = processImage(bytes.NewReader([]byte("not an image")), "x.png")
	assert.Error(t, err)
}

func TestParseRenditionFilter(t *testing.T) {
	tests := []struct {
		filter string
		op     string
		w, h   int
		ok     bool
	}{
		{"width-400", "width", 400, 0, true},
		{"max-800x600", "max", 800, 600, true},
		{"fill-200x200", "fill", 200, 200, true},
		{"width-0", "", 0, 0, false},
		{"fill-200", "", 0, 0, false},
		{"max-axb", "", 0, 0, false},
		{"scale-50", "", 0, 0, false},
		{"original", "", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			op, w, h, err := parseRenditionFilter(tt.filter)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestRenditionRects(t *testing.T) {
	b := image.Rect(0, 0, 1000, 500)
	tests := []struct {
		name   string
		op     string
		w, h   int
		rect   image.Rectangle
		ow, oh int
	}{
		{"width", "width", 400, 0, b, 400, 200},
		{"width no upscale", "width", 2000, 0, b, 1000, 500},
		{"max wide", "max", 400, 400, b, 400, 200},
		{"max tall box", "max", 800, 100, b, 200, 100},
		{"fill square", "fill", 100, 100, image.Rect(250, 0, 750, 500), 100, 100},
		{"fill tall", "fill", 100, 200, image.Rect(375, 0, 625, 500), 100, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rect, ow, oh := renditionRects(b, tt.op, tt.w, tt.h)
			assert.Equal(t, tt.rect, rect)
			assert.Equal(t, tt.ow, ow)
			assert.Equal(t, tt.oh, oh)
		})
	}
}

func TestRenditionsURL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, uploadsSubdir), 0o755))
	src := image.NewRGBA(image.Rect(0, 0, 800, 400))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, uploadsSubdir, "photo.jpg"), buf.Bytes(), 0o644))

	r := NewRenditions(dir)
	img := &Image{Filename: "photo.jpg"}

	assert.Equal(t, "", r.URL(nil, RenditionOriginal))
	assert.Equal(t, "/public/uploads/photo.jpg", r.URL(img, RenditionOriginal))
	assert.Equal(t, "/public/uploads/photo.jpg", r.URL(img, ""))
	assert.Equal(t, "/public/uploads/photo.jpg", r.URL(img, "bogus"))

	assert.Equal(t, "/public/renditions/photo.fill-100x100.jpg", r.URL(img, "fill-100x100"))
	f, err := os.Open(filepath.Join(dir, renditionsSubdir, "photo.fill-100x100.jpg"))
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)

	// Second call reuses the generated file.
	assert.Equal(t, "/public/renditions/photo.fill-100x100.jpg", r.URL(img, "fill-100x100"))

	missing := &Image{Filename: "gone.jpg"}
	assert.Equal(t, "/public/uploads/gone.jpg", r.URL(missing, "width-100"))
}
