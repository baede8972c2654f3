package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// Raster is an in-memory Surface. Pixels start transparent; snapshots are
// flattened onto white the way the browser page shows the canvas.
type Raster struct {
	mu    sync.Mutex
	img   *image.RGBA
	state style
	stack []style
	ink   color.RGBA // straight, not premultiplied

	raster *vector.Rasterizer
}

// NewRaster creates a transparent surface of the given size
func NewRaster(width, height int) *Raster {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	r := &Raster{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		state:  defaultStyle(),
		raster: vector.NewRasterizer(width, height),
	}
	r.ink, _ = ParseHexColor(r.state.color)
	return r
}

func (r *Raster) Save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stack = append(r.stack, r.state)
}

func (r *Raster) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		return
	}
	r.state = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.ink, _ = ParseHexColor(r.state.color)
}

// SetStrokeColor sets the ink; an unparseable value keeps the previous ink
func (r *Raster) SetStrokeColor(hex string) {
	c, err := ParseHexColor(hex)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.color = hex
	r.ink = c
}

func (r *Raster) SetLineWidth(w float64) {
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.width = w
}

func (r *Raster) SetComposite(op Composite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.composite = op
}

// StrokeLine fills the round-capped capsule around the segment with the
// current style. The coverage mask is anti-aliased.
func (r *Raster) StrokeLine(from, to Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !finitePoint(from) || !finitePoint(to) {
		return
	}
	radius := math.Max(r.state.width/2, 0.5)
	b := r.img.Bounds()

	minX := clampCoord(math.Floor(math.Min(from.X, to.X)-radius), b.Min.X, b.Max.X)
	maxX := clampCoord(math.Ceil(math.Max(from.X, to.X)+radius), b.Min.X, b.Max.X)
	minY := clampCoord(math.Floor(math.Min(from.Y, to.Y)-radius), b.Min.Y, b.Max.Y)
	maxY := clampCoord(math.Ceil(math.Max(from.Y, to.Y)+radius), b.Min.Y, b.Max.Y)

	area := image.Rect(minX, minY, maxX, maxY)
	if area.Empty() {
		return
	}

	r.raster.Reset(area.Dx(), area.Dy())
	r.raster.DrawOp = draw.Src
	capsule(r.raster, from, to, radius, area.Min)

	mask := image.NewAlpha(image.Rect(0, 0, area.Dx(), area.Dy()))
	r.raster.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	switch r.state.composite {
	case DestinationOut:
		// dst * (1 - coverage * ink alpha)
		if r.ink.A != 0xff {
			scaleAlpha(mask, r.ink.A)
		}
		draw.DrawMask(r.img, area, image.Transparent, image.Point{}, mask, image.Point{}, draw.Src)
	default:
		ink := color.NRGBA{R: r.ink.R, G: r.ink.G, B: r.ink.B, A: r.ink.A}
		draw.DrawMask(r.img, area, image.NewUniform(ink), image.Point{}, mask, image.Point{}, draw.Over)
	}
}

// Clear makes every pixel transparent
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.img.Pix)
}

// Bounds returns the surface rectangle
func (r *Raster) Bounds() image.Rectangle {
	return r.img.Bounds()
}

// At returns the raw, unflattened pixel at x, y
func (r *Raster) At(x, y int) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img.RGBAAt(x, y)
}

// Snapshot returns a copy of the surface composited onto white
func (r *Raster) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := image.NewRGBA(r.img.Bounds())
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), r.img, r.img.Bounds().Min, draw.Over)
	return out
}

// WritePNG encodes a snapshot as PNG
func (r *Raster) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Snapshot())
}

// kappa places cubic control points for a quarter circle
const kappa = 0.5522847498

// capsule adds the outline of a segment with round caps, offset by -off,
// to z. A zero-length segment gives a circle.
func capsule(z *vector.Rasterizer, a, b Point, radius float64, off image.Point) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	ux, uy := 1.0, 0.0
	if length > 0 {
		ux, uy = dx/length, dy/length
	}
	// Normal to the segment
	nx, ny := -uy, ux

	ox, oy := float64(off.X), float64(off.Y)
	pt := func(c Point, u, n float64) (float32, float32) {
		return float32(c.X + (ux*u+nx*n)*radius - ox), float32(c.Y + (uy*u+ny*n)*radius - oy)
	}
	cube := func(c Point, u1, n1, u2, n2, u3, n3 float64) {
		x1, y1 := pt(c, u1, n1)
		x2, y2 := pt(c, u2, n2)
		x3, y3 := pt(c, u3, n3)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
	}

	z.MoveTo(pt(a, 0, 1))
	z.LineTo(pt(b, 0, 1))
	// Cap around b, from +n through +u to -n
	cube(b, kappa, 1, 1, kappa, 1, 0)
	cube(b, 1, -kappa, kappa, -1, 0, -1)
	z.LineTo(pt(a, 0, -1))
	// Cap around a, from -n through -u to +n
	cube(a, -kappa, -1, -1, -kappa, -1, 0)
	cube(a, -1, kappa, -kappa, 1, 0, 1)
	z.ClosePath()
}

// scaleAlpha multiplies every mask value by a/255
func scaleAlpha(mask *image.Alpha, a uint8) {
	for i, v := range mask.Pix {
		mask.Pix[i] = uint8(uint32(v) * uint32(a) / 0xff)
	}
}

func finitePoint(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func clampCoord(v float64, lo, hi int) int {
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}
