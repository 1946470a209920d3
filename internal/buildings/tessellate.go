package buildings

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
)

// Tessellation describes the raster a tessellation was computed on.
type Tessellation struct {
	Resolution float64 // metres per pixel
	Width      int
	Height     int
	Assigned   int // pixels belonging to some cell
}

// grid is a raster over the building extent. Row 0 is the southern edge.
type grid struct {
	min    orb.Point
	res    float64
	nx, ny int
	label  []int32 // building index or -1
}

func newGrid(extent orb.Bound, maxCells int) *grid {
	w, h := extent.Max[0]-extent.Min[0], extent.Max[1]-extent.Min[1]
	res := math.Max(1, math.Sqrt(w*h/float64(maxCells)))
	g := &grid{
		min: extent.Min,
		res: res,
		nx:  max(1, int(math.Ceil(w/res))),
		ny:  max(1, int(math.Ceil(h/res))),
	}
	g.label = make([]int32, g.nx*g.ny)
	for i := range g.label {
		g.label[i] = -1
	}
	return g
}

func (g *grid) centre(i int) float64 { return g.min[0] + (float64(i)+0.5)*g.res }
func (g *grid) middle(j int) float64 { return g.min[1] + (float64(j)+0.5)*g.res }

// fill labels every pixel whose centre lies inside poly (even-odd rule).
// It returns the number of pixels set.
func (g *grid) fill(poly orb.Polygon, id int32) int {
	b := poly.Bound()
	j0 := max(0, int(math.Floor((b.Min[1]-g.min[1])/g.res-0.5)))
	j1 := min(g.ny-1, int(math.Ceil((b.Max[1]-g.min[1])/g.res-0.5)))
	var n int
	var xs []float64
	for j := j0; j <= j1; j++ {
		y := g.middle(j)
		xs = xs[:0]
		for _, r := range poly {
			for k := 0; k+1 < len(r); k++ {
				a, c := r[k], r[k+1]
				if (a[1] <= y) == (c[1] <= y) {
					continue
				}
				xs = append(xs, a[0]+(y-a[1])*(c[0]-a[0])/(c[1]-a[1]))
			}
		}
		slices.Sort(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			i0 := max(0, int(math.Ceil((xs[k]-g.min[0])/g.res-0.5)))
			i1 := min(g.nx-1, int(math.Ceil((xs[k+1]-g.min[0])/g.res-0.5))-1)
			for i := i0; i <= i1; i++ {
				g.label[j*g.nx+i] = id
				n++
			}
		}
	}
	return n
}

func (g *grid) pixel(p orb.Point) (int, bool) {
	i := int(math.Floor((p[0] - g.min[0]) / g.res))
	j := int(math.Floor((p[1] - g.min[1]) / g.res))
	if i < 0 || j < 0 || i >= g.nx || j >= g.ny {
		return 0, false
	}
	return j*g.nx + i, true
}

// nearest computes, for every pixel, the labelled pixel closest to it and
// the squared distance in pixels, with the two-pass exact Euclidean
// distance transform of Felzenszwalb and Huttenlocher.
func (g *grid) nearest() (owner []int32, d2 []float64) {
	nx, ny := g.nx, g.ny
	site := make([]int32, nx*ny) // row of the nearest site in the same column
	f := make([]float64, nx*ny)
	for x := 0; x < nx; x++ {
		prev := -1
		for y := 0; y < ny; y++ {
			if g.label[y*nx+x] >= 0 {
				prev = y
			}
			site[y*nx+x] = int32(prev)
		}
		next := -1
		for y := ny - 1; y >= 0; y-- {
			i := y*nx + x
			if g.label[i] >= 0 {
				next = y
			}
			if next >= 0 && (site[i] < 0 || next-y < y-int(site[i])) {
				site[i] = int32(next)
			}
			if site[i] < 0 {
				f[i] = math.Inf(1)
			} else {
				d := float64(y - int(site[i]))
				f[i] = d * d
			}
		}
	}

	owner = make([]int32, nx*ny)
	d2 = make([]float64, nx*ny)
	v := make([]int, nx)
	z := make([]float64, nx+1)
	for y := 0; y < ny; y++ {
		row := y * nx
		k := -1
		for q := 0; q < nx; q++ {
			fq := f[row+q]
			if math.IsInf(fq, 1) {
				continue
			}
			if k < 0 {
				k = 0
				v[0], z[0], z[1] = q, math.Inf(-1), math.Inf(1)
				continue
			}
			var s float64
			for {
				p := v[k]
				s = ((fq + float64(q*q)) - (f[row+p] + float64(p*p))) / float64(2*(q-p))
				if s > z[k] {
					break
				}
				k--
			}
			k++
			v[k], z[k], z[k+1] = q, s, math.Inf(1)
		}
		if k < 0 {
			for x := 0; x < nx; x++ {
				owner[row+x], d2[row+x] = -1, math.Inf(1)
			}
			continue
		}
		j := 0
		for x := 0; x < nx; x++ {
			for z[j+1] < float64(x) {
				j++
			}
			p := v[j]
			dx := float64(x - p)
			d2[row+x] = dx*dx + f[row+p]
			owner[row+x] = g.label[int(site[row+p])*nx+p]
		}
	}
	return owner, d2
}

type cellAcc struct {
	count  int
	row    int
	lo, hi int
	pts    []orb.Point
}

func (c *cellAcc) flush(g *grid) {
	if c.row < 0 {
		return
	}
	x0 := g.min[0] + float64(c.lo)*g.res
	x1 := g.min[0] + float64(c.hi+1)*g.res
	y0 := g.min[1] + float64(c.row)*g.res
	y1 := y0 + g.res
	c.pts = append(c.pts, orb.Point{x0, y0}, orb.Point{x1, y0}, orb.Point{x0, y1}, orb.Point{x1, y1})
	c.row = -1
}

// Tessellate builds a morphological tessellation of bs: every pixel within
// opts.Buffer of a building goes to the nearest one. It fills CellArea,
// CellOrientation and CellAlignment. Buildings are indexed by position in bs.
func Tessellate(bs []*Building, opts Options) (Tessellation, error) {
	opts = opts.normalized()
	if len(bs) == 0 {
		return Tessellation{}, model.DegenerateError("buildings.tessellate", ErrNoBuildings)
	}
	var extent orb.Bound
	for i, b := range bs {
		if i == 0 {
			extent = b.Geometry.Bound()
			continue
		}
		extent = extent.Union(b.Geometry.Bound())
	}
	extent = extent.Pad(opts.Buffer)

	g := newGrid(extent, opts.MaxCells)
	for i, b := range bs {
		if g.fill(b.Geometry, int32(i)) > 0 {
			continue
		}
		// Footprints smaller than a pixel keep one seed at their centroid.
		if px, ok := g.pixel(mgeo.Centroid(orb.MultiPolygon{b.Geometry})); ok {
			g.label[px] = int32(i)
		}
	}

	owner, d2 := g.nearest()
	limit := opts.Buffer / g.res
	limit2 := limit * limit

	acc := make([]cellAcc, len(bs))
	for i := range acc {
		acc[i].row = -1
	}
	t := Tessellation{Resolution: g.res, Width: g.nx, Height: g.ny}
	for y := 0; y < g.ny; y++ {
		for x := 0; x < g.nx; x++ {
			i := y*g.nx + x
			o := owner[i]
			if o < 0 || d2[i] > limit2 {
				continue
			}
			c := &acc[o]
			if c.row != y {
				c.flush(g)
				c.row, c.lo = y, x
			}
			c.hi = x
			c.count++
			t.Assigned++
		}
	}

	for i, b := range bs {
		c := &acc[i]
		c.flush(g)
		b.CellArea = float64(c.count) * g.res * g.res
		b.CellOrientation = math.NaN()
		if c.count > 0 {
			b.CellOrientation = mgeo.Orientation(c.pts)
		}
		b.CellAlignment = math.Abs(b.Orientation - b.CellOrientation)
	}

	zap.L().Debug("buildings: tessellated",
		zap.String("component", "buildings"),
		zap.Float64("resolution", t.Resolution),
		zap.Int("width", t.Width),
		zap.Int("height", t.Height),
		zap.Int("assigned", t.Assigned),
	)
	return t, nil
}
