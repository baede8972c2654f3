package canvas

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF0000", color.RGBA{R: 255, A: 255}, false},
		{"#0f0", color.RGBA{G: 255, A: 255}, false},
		{"  #0000ff ", color.RGBA{B: 255, A: 255}, false},
		{"#00000080", color.RGBA{A: 128}, false},
		{"FFA500", color.RGBA{R: 255, G: 165, A: 255}, false},
		{"#12345", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
		{"", color.RGBA{}, true},
	}

	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestRaster_StrokeLine(t *testing.T) {
	r := NewRaster(20, 20)
	r.SetStrokeColor("#FF0000")
	r.SetLineWidth(3)
	r.StrokeLine(Point{X: 2, Y: 10}, Point{X: 17, Y: 10})

	if got := r.At(10, 10); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("Expected red on the line, got %v", got)
	}
	if got := r.At(10, 2); got.A != 0 {
		t.Errorf("Expected transparent away from the line, got %v", got)
	}
	// Round cap reaches past the endpoint by the radius
	if got := r.At(1, 9); got.A == 0 {
		t.Error("Expected round cap to cover the pixel before the start point")
	}
}

func TestRaster_EraserClearsPixels(t *testing.T) {
	r := NewRaster(20, 20)
	r.SetStrokeColor("#000000")
	r.SetLineWidth(6)
	r.StrokeLine(Point{X: 0, Y: 10}, Point{X: 20, Y: 10})

	r.Save()
	r.SetComposite(DestinationOut)
	r.SetLineWidth(4)
	r.StrokeLine(Point{X: 10, Y: 0}, Point{X: 10, Y: 20})
	r.Restore()

	if got := r.At(10, 10); got.A != 0 {
		t.Errorf("Expected erased pixel, got %v", got)
	}
	if got := r.At(2, 10); got.A != 255 {
		t.Errorf("Expected untouched ink outside the eraser, got %v", got)
	}

	// Restore brought back source-over
	r.StrokeLine(Point{X: 10, Y: 10}, Point{X: 10, Y: 10})
	if got := r.At(10, 10); got.A != 255 {
		t.Errorf("Expected paint after restore, got %v", got)
	}
}

func TestRaster_ClearAndSnapshot(t *testing.T) {
	r := NewRaster(8, 8)
	r.SetLineWidth(2)
	r.StrokeLine(Point{X: 0, Y: 4}, Point{X: 8, Y: 4})
	r.Clear()

	snap := r.Snapshot()
	if got := snap.RGBAAt(4, 4); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("Expected white background after clear, got %v", got)
	}

	var buf bytes.Buffer
	if err := r.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Expected valid PNG, got %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Errorf("Expected 8x8 image, got %v", img.Bounds())
	}
}

func TestRaster_InvalidStyleIgnored(t *testing.T) {
	r := NewRaster(10, 10)
	r.SetStrokeColor("#00FF00")
	r.SetStrokeColor("not a color")
	r.SetLineWidth(-1)
	r.StrokeLine(Point{X: 5.5, Y: 5.5}, Point{X: 5.5, Y: 5.5})

	// A 1px dot only partly covers its pixel
	if got := r.At(5, 5); got.A == 0 || got.G != got.A || got.R != 0 || got.B != 0 {
		t.Errorf("Expected previous green ink, got %v", got)
	}
}

func TestRaster_AntialiasedEdge(t *testing.T) {
	r := NewRaster(20, 20)
	r.SetStrokeColor("#0000FF")
	r.SetLineWidth(4)
	// Edges at y=8.5 and y=12.5 split pixel rows 8 and 12
	r.StrokeLine(Point{X: 0, Y: 10.5}, Point{X: 20, Y: 10.5})

	if got := r.At(10, 10); got.A != 255 {
		t.Errorf("Expected full coverage inside, got %v", got)
	}
	if got := r.At(10, 8); got.A == 0 || got.A == 255 {
		t.Errorf("Expected partial coverage on the edge, got %v", got)
	}
	if got := r.At(10, 6); got.A != 0 {
		t.Errorf("Expected no coverage outside, got %v", got)
	}
}

func TestRaster_TranslucentInkAndOffCanvas(t *testing.T) {
	r := NewRaster(10, 10)
	r.SetStrokeColor("#FF000080")
	r.SetLineWidth(4)
	r.StrokeLine(Point{X: -50, Y: 5}, Point{X: 50, Y: 5})

	got := r.At(5, 5)
	if got.A < 126 || got.A > 130 {
		t.Errorf("Expected half alpha, got %v", got)
	}

	// Entirely outside the surface is a no-op
	r.Clear()
	r.StrokeLine(Point{X: 100, Y: 100}, Point{X: 200, Y: 200})
	if got := r.At(9, 9); got.A != 0 {
		t.Errorf("Expected untouched surface, got %v", got)
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.Save()
	r.SetStrokeColor("#FF0000")
	r.SetLineWidth(6)
	r.SetComposite(DestinationOut)
	r.StrokeLine(Point{X: 0, Y: 0}, Point{X: 10, Y: 10})
	r.Restore()

	segs := r.Segments()
	if len(segs) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segs))
	}
	if segs[0].Color != "#FF0000" || segs[0].Width != 6 || segs[0].Composite != DestinationOut {
		t.Errorf("Unexpected segment %+v", segs[0])
	}

	ink, width, op := r.CurrentStyle()
	if ink != "#000000" || width != 1 || op != SourceOver {
		t.Errorf("Expected defaults restored, got %s %v %s", ink, width, op)
	}
	if r.Depth() != 0 {
		t.Errorf("Expected balanced save/restore, got depth %d", r.Depth())
	}

	r.Clear()
	if len(r.Segments()) != 0 || r.Clears() != 1 {
		t.Errorf("Expected clear to drop segments, got %d segments and %d clears", len(r.Segments()), r.Clears())
	}
}
