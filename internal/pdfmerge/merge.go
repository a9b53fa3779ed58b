// Package pdfmerge turns the files attached to a bill into one PDF.
//
// PDF uploads are merged as-is; JPEG, PNG and GIF images each become one
// A4 page scaled to fit inside the margins. Anything else is rejected.
package pdfmerge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrNoFiles         = errors.New("no files to merge")
	ErrUnsupportedType = errors.New("unsupported file type")
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

// File is one uploaded attachment.
type File struct {
	Name string
	Data []byte
}

const (
	pageW, pageH = 210.0, 297.0
	margin       = 10.0
)

var imageTypes = map[string]string{
	"image/jpeg": "JPG",
	"image/png":  "PNG",
	"image/gif":  "GIF",
}

// Merger merges bill attachments. The zero value is ready to use.
type Merger struct{}

func New() *Merger { return &Merger{} }

// Merge converts every file to PDF and concatenates them in order.
func (m *Merger) Merge(ctx context.Context, files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	parts := make([]io.ReadSeeker, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, err := Sniff(f)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "application/pdf":
			parts = append(parts, bytes.NewReader(f.Data))
		default:
			page, err := imagePage(f, imageTypes[kind], i)
			if err != nil {
				return nil, err
			}
			parts = append(parts, bytes.NewReader(page))
		}
	}

	if len(parts) == 1 {
		return io.ReadAll(parts[0])
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	var out bytes.Buffer
	if err := api.MergeRaw(parts, &out, false, conf); err != nil {
		return nil, fmt.Errorf("merge pdf: %w", err)
	}
	return out.Bytes(), nil
}

// Sniff returns the detected MIME type of a supported file.
func Sniff(f File) (string, error) {
	mt := mimetype.Detect(f.Data)
	if mt.Is("application/pdf") {
		return "application/pdf", nil
	}
	for kind := range imageTypes {
		if mt.Is(kind) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %s is %s", ErrUnsupportedType, f.Name, mt.String())
}

func imagePage(f File, imageType string, idx int) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.AddPage()

	name := "img" + strconv.Itoa(idx)
	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(f.Data))
	if pdf.Err() || info == nil {
		return nil, fmt.Errorf("decode image %s: %w", f.Name, pdf.Error())
	}

	w, h := fit(info.Width(), info.Height(), pageW-2*margin, pageH-2*margin)
	x := (pageW - w) / 2
	y := (pageH - h) / 2
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render image %s: %w", f.Name, err)
	}
	return buf.Bytes(), nil
}

// fit scales w×h down (never up) to fit inside maxW×maxH keeping the aspect ratio.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := 1.0
	if w > maxW {
		scale = maxW / w
	}
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}
