package source

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// PDFDecoder rasterizes the first page of a PDF document
type PDFDecoder struct {
	DPI float64
}

func (d *PDFDecoder) Decode(raw []byte, mimeHint string) (*Image, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, mimeHint, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrDecode)
	}

	dpi := d.DPI
	if dpi <= 0 {
		dpi = 72
	}
	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: render page 1: %v", ErrDecode, err)
	}

	return NewImage("pdf", img), nil
}
