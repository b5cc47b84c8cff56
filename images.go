package wapps

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth    = 1600
	jpegQuality      = 80
	maxUploadSize    = 10 << 20 // 10MB
	uploadsSubdir    = "uploads"
	renditionsSubdir = "renditions"

	// RenditionOriginal names the unmodified uploaded image.
	RenditionOriginal = "original"
)

// processImage decodes an image from src, downscales it to maxImageWidth,
// and encodes it as JPEG. Returns metadata and the encoded bytes.
func processImage(src io.Reader, originalName string) (Image, []byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return Image{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		h = h * maxImageWidth / w
		w = maxImageWidth
		img = scaleImage(img, bounds, w, h)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Image{}, nil, fmt.Errorf("encode jpeg: %w", err)
	}

	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	slug := Slugify(base)
	if slug == "" {
		slug = "image"
	}
	return Image{
		Title:        base,
		Filename:     slug + ".jpg",
		OriginalName: originalName,
		Width:        w,
		Height:       h,
		Size:         buf.Len(),
		UploadedAt:   time.Now().UTC().Format(time.RFC3339),
	}, buf.Bytes(), nil
}

func scaleImage(src image.Image, srcRect image.Rectangle, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcRect, draw.Over, nil)
	return dst
}

// ensureUniqueFilename appends a counter if filename already exists on disk or in the database.
func (a *App) ensureUniqueFilename(img *Image) {
	dir := filepath.Join(a.staticDir, uploadsSubdir)
	base := strings.TrimSuffix(img.Filename, ".jpg")
	candidate := img.Filename
	for counter := 2; ; counter++ {
		_, statErr := os.Stat(filepath.Join(dir, candidate))
		_, dbErr := a.Store.GetImageByFilename(candidate)
		if statErr != nil && dbErr != nil {
			break
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
	img.Filename = candidate
}

// --- Renditions ---

// Renditions serves derived image variants from the static directory.
// Filters:
//
//	original     the uploaded file
//	width-N      scaled down to N pixels wide
//	max-WxH      scaled down to fit inside WxH
//	fill-WxH     cropped around the center to WxH
//
// Variants are generated on first use and kept on disk. Unknown filters and
// generation failures fall back to the original.
type Renditions struct {
	dir string
	mu  sync.Mutex
}

// NewRenditions creates a renderer for images stored under staticDir.
func NewRenditions(staticDir string) *Renditions {
	return &Renditions{dir: staticDir}
}

// URL implements ImageRenderer.
func (r *Renditions) URL(img *Image, filter string) string {
	if img == nil || img.Filename == "" {
		return ""
	}
	original := "/public/" + uploadsSubdir + "/" + img.Filename
	if filter == "" || filter == RenditionOriginal {
		return original
	}
	op, w, h, err := parseRenditionFilter(filter)
	if err != nil {
		return original
	}
	name := strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename)) + "." + filter + ".jpg"
	dst := filepath.Join(r.dir, renditionsSubdir, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := os.Stat(dst); err != nil {
		src := filepath.Join(r.dir, uploadsSubdir, img.Filename)
		if err := generateRendition(src, dst, op, w, h); err != nil {
			return original
		}
	}
	return "/public/" + renditionsSubdir + "/" + name
}

func parseRenditionFilter(filter string) (op string, w, h int, err error) {
	op, size, ok := strings.Cut(filter, "-")
	if !ok {
		return "", 0, 0, fmt.Errorf("bad filter %q", filter)
	}
	switch op {
	case "width":
		w, err = strconv.Atoi(size)
	case "max", "fill":
		ws, hs, found := strings.Cut(size, "x")
		if !found {
			return "", 0, 0, fmt.Errorf("bad filter %q", filter)
		}
		if w, err = strconv.Atoi(ws); err == nil {
			h, err = strconv.Atoi(hs)
		}
	default:
		err = fmt.Errorf("unknown filter %q", op)
	}
	if err == nil && (w <= 0 || (op != "width" && h <= 0)) {
		err = fmt.Errorf("bad filter %q", filter)
	}
	return op, w, h, err
}

// renditionRects returns the source rectangle to read and the output size.
func renditionRects(b image.Rectangle, op string, w, h int) (image.Rectangle, int, int) {
	sw, sh := b.Dx(), b.Dy()
	switch op {
	case "width":
		if sw <= w {
			return b, sw, sh
		}
		return b, w, sh * w / sw
	case "max":
		if sw <= w && sh <= h {
			return b, sw, sh
		}
		if sw*h > sh*w {
			return b, w, sh * w / sw
		}
		return b, sw * h / sh, h
	default: // fill
		cw, ch := sw, sh
		if sw*h > sh*w {
			cw = sh * w / h
		} else {
			ch = sw * h / w
		}
		x0 := b.Min.X + (sw-cw)/2
		y0 := b.Min.Y + (sh-ch)/2
		crop := image.Rect(x0, y0, x0+cw, y0+ch)
		if cw < w {
			return crop, cw, ch
		}
		return crop, w, h
	}
}

func generateRendition(src, dst, op string, w, h int) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}
	rect, ow, oh := renditionRects(img.Bounds(), op, w, h)
	out := scaleImage(img, rect, max(ow, 1), max(oh, 1))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644)
}

// --- Admin handlers ---

func (a *App) handleImageUpload(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.String(http.StatusBadRequest, "No image file provided")
	}
	if file.Size > maxUploadSize {
		return c.String(http.StatusBadRequest, "File too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, data, err := processImage(src, file.Filename)
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid image: "+err.Error())
	}
	if title := strings.TrimSpace(c.FormValue("title")); title != "" {
		img.Title = title
	}

	a.ensureUniqueFilename(&img)

	dir := filepath.Join(a.staticDir, uploadsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, img.Filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := a.Store.SaveImage(&img); err != nil {
		return err
	}
	a.Log.Info().Str("file", img.Filename).Int("width", img.Width).Int("height", img.Height).Msg("image uploaded")

	return a.renderImageList(c)
}

func (a *App) handleImageDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}

	filename := filepath.Base(c.Param("filename"))
	if filename == "" || filename == "." || filename == "/" {
		return c.String(http.StatusBadRequest, "Filename required")
	}

	_ = os.Remove(filepath.Join(a.staticDir, uploadsSubdir, filename)) // ignore error if file already gone
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if variants, err := filepath.Glob(filepath.Join(a.staticDir, renditionsSubdir, stem+".*.jpg")); err == nil {
		for _, v := range variants {
			_ = os.Remove(v)
		}
	}

	if err := a.Store.DeleteImage(filename); err != nil {
		return err
	}
	// The site logo may have pointed at this image.
	a.Identity.InvalidateAll()

	return a.renderImageList(c)
}

func (a *App) handleImageList(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	return a.renderImageList(c)
}

func (a *App) renderImageList(c echo.Context) error {
	images, err := a.Store.ListImages()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminImages(images, CsrfToken(c)))
}
