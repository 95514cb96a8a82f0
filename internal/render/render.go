// Package render draws certificate PDFs: a full-page background image with
// text fields placed at percentage coordinates.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Field is one text placeholder. X and Y are percentages of the page size;
// Y is the text baseline.
type Field struct {
	Key   string  `json:"key"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size,omitempty"`
	Align string  `json:"align,omitempty"`
	Color string  `json:"color,omitempty"`
	Font  string  `json:"font,omitempty"`
	Bold  bool    `json:"bold,omitempty"`
}

// Template describes a certificate layout. Width and Height are in points.
type Template struct {
	ImagePath string  `json:"image_path"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Fields    []Field `json:"fields"`
}

const (
	defaultFontSize = 24
	defaultFont     = "Helvetica"
)

// PDFRenderer renders templates with go-pdf/fpdf.
type PDFRenderer struct{}

// NewPDFRenderer returns a renderer.
func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

// Prepare validates tpl and checks that its background image is readable.
func (r *PDFRenderer) Prepare(tpl Template) error {
	if tpl.Width <= 0 || tpl.Height <= 0 {
		return errors.New("template width and height must be positive")
	}
	if len(tpl.Fields) == 0 {
		return errors.New("template has no fields")
	}
	for i, f := range tpl.Fields {
		if f.Key == "" {
			return fmt.Errorf("field %d has no key", i)
		}
		if _, _, _, err := parseColor(f.Color); err != nil {
			return fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	if tpl.ImagePath == "" {
		return nil
	}
	if _, err := imageType(tpl.ImagePath); err != nil {
		return err
	}
	fh, err := os.Open(tpl.ImagePath)
	if err != nil {
		return fmt.Errorf("template image: %w", err)
	}
	return fh.Close()
}

// Render writes one certificate for row to w. Missing row keys render empty.
func (r *PDFRenderer) Render(w io.Writer, tpl Template, row map[string]string) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: tpl.Width, Ht: tpl.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	if tpl.ImagePath != "" {
		typ, err := imageType(tpl.ImagePath)
		if err != nil {
			return err
		}
		pdf.ImageOptions(tpl.ImagePath, 0, 0, tpl.Width, tpl.Height, false,
			fpdf.ImageOptions{ImageType: typ}, 0, "")
	}

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, f := range tpl.Fields {
		text := tr(row[f.Key])
		if text == "" {
			continue
		}
		size := f.Size
		if size <= 0 {
			size = defaultFontSize
		}
		font := f.Font
		if font == "" {
			font = defaultFont
		}
		style := ""
		if f.Bold {
			style = "B"
		}
		red, green, blue, _ := parseColor(f.Color)
		pdf.SetFont(font, style, size)
		pdf.SetTextColor(red, green, blue)

		x := tpl.Width * f.X / 100
		y := tpl.Height * f.Y / 100
		switch strings.ToLower(f.Align) {
		case "center":
			x -= pdf.GetStringWidth(text) / 2
		case "right":
			x -= pdf.GetStringWidth(text)
		}
		pdf.Text(x, y, text)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return pdf.Output(w)
}

func imageType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG", nil
	case ".jpg", ".jpeg":
		return "JPG", nil
	default:
		return "", fmt.Errorf("unsupported template image %q (want png or jpg)", filepath.Base(path))
	}
}

// parseColor accepts "", "#rgb" or "#rrggbb". Empty is black.
func parseColor(s string) (int, int, int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 0:
		return 0, 0, 0, nil
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}
