package source

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrDecode marks failures to turn raw bytes into an Image.
var ErrDecode = errors.New("decode failed")

// Image is an immutable decoded bitmap. Callers must not write to Pixels.
type Image struct {
	Name   string
	Pixels *image.NRGBA
}

// NewImage copies img into a zero-origin NRGBA buffer
func NewImage(name string, img image.Image) *Image {
	b := img.Bounds()
	pix := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(pix, pix.Bounds(), img, b.Min, draw.Src)
	return &Image{Name: name, Pixels: pix}
}

func (i *Image) Width() int  { return i.Pixels.Rect.Dx() }
func (i *Image) Height() int { return i.Pixels.Rect.Dy() }

// Decoder turns raw file bytes into an Image
type Decoder interface {
	Decode(raw []byte, mimeHint string) (*Image, error)
}

// Registry routes each MIME type to the decoder that handles it
type Registry struct {
	raster Decoder
	pdf    Decoder
}

// NewRegistry returns a registry with raster and PDF support
func NewRegistry() *Registry {
	return &Registry{
		raster: RasterDecoder{},
		pdf:    &PDFDecoder{DPI: 144},
	}
}

func (r *Registry) Decode(raw []byte, mimeHint string) (*Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if mimeHint == "" {
		mimeHint = SniffMIME(raw, "")
	}
	if mimeHint == "application/pdf" {
		return r.pdf.Decode(raw, mimeHint)
	}
	return r.raster.Decode(raw, mimeHint)
}

// Load reads and decodes a file from disk
func (r *Registry) Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img, err := r.Decode(raw, SniffMIME(raw, path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	img.Name = filepath.Base(path)
	return img, nil
}

// SniffMIME detects the content type from the leading bytes, falling back
// to the file extension when the content is not recognized.
func SniffMIME(raw []byte, path string) string {
	detected := http.DetectContentType(raw)
	if detected != "application/octet-stream" && !strings.HasPrefix(detected, "text/") {
		return detected
	}
	if ext := filepath.Ext(path); ext != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
			return byExt
		}
		switch strings.ToLower(ext) {
		case ".tif", ".tiff":
			return "image/tiff"
		case ".webp":
			return "image/webp"
		case ".bmp":
			return "image/bmp"
		}
	}
	return detected
}

var supportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".pdf"}

// IsSupported reports whether the file extension is one Load understands
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range supportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
