// Package fractal estimates the box-counting dimension of a street network
// from an in-memory raster of its drawing.
package fractal

import (
	"image"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/vector"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/network"
)

// MinSize is the smallest canvas on which 2 px boxes still mean something.
const MinSize = 900

// ReferenceSize is the canvas side the stroke widths are given for. Other
// sizes scale the strokes so the drawing stays the same figure.
const ReferenceSize = 1200

// RenderOptions controls the drawing. Widths are in pixels of a
// ReferenceSize canvas.
type RenderOptions struct {
	Size       int
	Margin     float64
	LineWidth  float64
	NodeRadius float64
}

// DefaultRenderOptions draws an 8 inch square figure at 150 dpi.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Size:       ReferenceSize,
		Margin:     0.02,
		LineWidth:  2,
		NodeRadius: 3,
	}
}

func (o RenderOptions) normalized() RenderOptions {
	d := DefaultRenderOptions()
	if o.Size < MinSize {
		o.Size = d.Size
	}
	if o.Margin < 0 || o.Margin >= 0.5 {
		o.Margin = d.Margin
	}
	if o.LineWidth <= 0 {
		o.LineWidth = d.LineWidth
	}
	if o.NodeRadius < 0 {
		o.NodeRadius = d.NodeRadius
	}
	return o
}

// Raster is a rendered network. ID only tags log lines so that concurrent
// renders can be told apart.
type Raster struct {
	ID    string
	Image *image.Gray
}

// canvas maps projected metres to pixels with equal aspect, y pointing down.
type canvas struct {
	z     *vector.Rasterizer
	scale float64
	minX  float64
	maxY  float64
	offX  float64
	offY  float64
}

func (c *canvas) px(p orb.Point) (float32, float32) {
	x := c.offX + (p.X()-c.minX)*c.scale
	y := c.offY + (c.maxY-p.Y())*c.scale
	return float32(x), float32(y)
}

// segment draws a-b as a quad of width w. Every shape is emitted with the
// same winding so overlapping strokes add up instead of cancelling.
func (c *canvas) segment(a, b orb.Point, w float64) {
	ax, ay := c.px(a)
	bx, by := c.px(b)
	dx, dy := float64(bx-ax), float64(by-ay)
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := float32(-dy/l*w/2), float32(dx/l*w/2)
	c.z.MoveTo(ax+nx, ay+ny)
	c.z.LineTo(bx+nx, by+ny)
	c.z.LineTo(bx-nx, by-ny)
	c.z.LineTo(ax-nx, ay-ny)
	c.z.ClosePath()
}

const discSides = 16

func (c *canvas) disc(p orb.Point, r float64) {
	if r <= 0 {
		return
	}
	cx, cy := c.px(p)
	for i := 0; i <= discSides; i++ {
		// Clockwise in pixel space, matching segment.
		t := -2 * math.Pi * float64(i) / discSides
		x := cx + float32(r*math.Cos(t))
		y := cy + float32(r*math.Sin(t))
		if i == 0 {
			c.z.MoveTo(x, y)
			continue
		}
		c.z.LineTo(x, y)
	}
	c.z.ClosePath()
}

// Render draws the projected network black on white.
func Render(p *network.Projected, opts RenderOptions) (*Raster, error) {
	opts = opts.normalized()
	if p == nil || len(p.NodeIDs) == 0 {
		return nil, model.DegenerateError("fractal.render", eris.New("empty network"))
	}

	b := p.Bound()
	w, h := b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y()
	if w <= 0 && h <= 0 {
		return nil, model.DegenerateError("fractal.render", eris.New("network has no extent"))
	}

	stroke := float64(opts.Size) / ReferenceSize
	inner := float64(opts.Size) * (1 - 2*opts.Margin)
	scale := inner / math.Max(w, h)
	c := &canvas{
		z:     vector.NewRasterizer(opts.Size, opts.Size),
		scale: scale,
		minX:  b.Min.X(),
		maxY:  b.Max.Y(),
		offX:  (float64(opts.Size) - w*scale) / 2,
		offY:  (float64(opts.Size) - h*scale) / 2,
	}

	for _, s := range p.Streets {
		for i := 0; i+1 < len(s.Line); i++ {
			c.segment(s.Line[i], s.Line[i+1], opts.LineWidth*stroke)
		}
	}
	for _, id := range p.NodeIDs {
		c.disc(p.Nodes[id], opts.NodeRadius*stroke)
	}

	mask := image.NewAlpha(image.Rect(0, 0, opts.Size, opts.Size))
	c.z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	gray := image.NewGray(mask.Bounds())
	for i, a := range mask.Pix {
		gray.Pix[i] = 255 - a
	}

	r := &Raster{ID: uuid.NewString(), Image: gray}
	zap.L().Debug("fractal: network rendered",
		zap.String("raster", r.ID),
		zap.Int("size", opts.Size),
		zap.Int("streets", len(p.Streets)),
	)
	return r, nil
}
