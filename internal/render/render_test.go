package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.RGBA{R: 240, G: 230, B: 200, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "bg.png")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer fh.Close()
	if err := png.Encode(fh, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func testTemplate(img string) Template {
	return Template{
		ImagePath: img,
		Width:     842,
		Height:    595,
		Fields: []Field{
			{Key: "name", X: 50, Y: 45, Size: 36, Align: "center", Color: "#1a2b3c", Bold: true},
			{Key: "course", X: 50, Y: 60, Align: "center"},
		},
	}
}

func TestPrepare(t *testing.T) {
	r := NewPDFRenderer()
	if err := r.Prepare(testTemplate(writePNG(t))); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	bad := []Template{
		testTemplate(filepath.Join(t.TempDir(), "missing.png")),
		testTemplate("bg.gif"),
		{Width: 0, Height: 10, Fields: []Field{{Key: "a"}}},
		{Width: 10, Height: 10},
		{Width: 10, Height: 10, Fields: []Field{{Key: "a", Color: "blue"}}},
	}
	for i, tpl := range bad {
		if err := r.Prepare(tpl); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewPDFRenderer()
	tpl := testTemplate(writePNG(t))
	var buf bytes.Buffer
	if err := r.Render(&buf, tpl, map[string]string{"name": "Zoë Ng", "course": "Go 101"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestRenderWithoutImage(t *testing.T) {
	var buf bytes.Buffer
	tpl := Template{Width: 300, Height: 200, Fields: []Field{{Key: "name", X: 10, Y: 50}}}
	if err := NewPDFRenderer().Render(&buf, tpl, map[string]string{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty output")
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string][3]int{
		"":        {0, 0, 0},
		"#fff":    {255, 255, 255},
		"#1a2b3c": {0x1a, 0x2b, 0x3c},
		"00ff00":  {0, 255, 0},
	}
	for in, want := range cases {
		r, g, b, err := parseColor(in)
		if err != nil || [3]int{r, g, b} != want {
			t.Fatalf("%q: got %d,%d,%d err %v", in, r, g, b, err)
		}
	}
}
