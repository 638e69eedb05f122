package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"racetrack/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueFunction shows the value function as an isometric projection of the 3d surface
// (x, y, max value) over the track.
type ValueFunction struct {
	id      string
	updates <-chan []fastview.EleUpdate
	view    projection
}

// projection holds the canvas and scaling parameters, fixed by the track's dimensions.
type projection struct {
	width, height float64 // canvas size in pixels
	cellDim       float64 // cell height/width in pixels
	xyscale       float64 // pixels per x or y unit
	zscale        float64 // pixels per z unit
	zrange        float64 // span of the values, mapped onto zscale units
	sinAng        float64
	cosAng        float64
}

// ang is the angle of the x and y axes.
const ang = math.Pi / 6

func newProjection(cells [][]Cell) projection {
	cellDim := float64(fitCellDim(cells, 600, 10, 40))
	p := projection{
		cellDim: cellDim,
		xyscale: cellDim,
		zscale:  cellDim * 0.3,
		zrange:  1,
		sinAng:  math.Sin(ang),
		cosAng:  math.Cos(ang),
	}
	if len(cells) > 0 {
		p.width = float64(len(cells)) * cellDim
		p.height = float64(len(cells[0])) * cellDim
		// Values are bounded by the floor, so scale heights such that the floor spans a
		// few cells rather than thousands of pixels.
		lo, _ := valueRange(cells)
		p.zrange = max(math.Abs(lo)/8, 1)
	}
	return p
}

func NewValueFunction(
	done <-chan struct{},
	initial [][]Cell,
	cells <-chan [][]Cell,
) (vf *ValueFunction) {
	vf = &ValueFunction{
		id:   "valuefunction",
		view: newProjection(initial),
	}
	vf.updates = channerics.Convert(done, cells, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

// project applies an isometric projection to the passed point.
func (p projection) project(x, y, z float64) (float64, float64) {
	z /= p.zrange
	sx := (x - y) * p.cosAng * p.xyscale
	sy := (x+y)*p.sinAng*p.xyscale - z*p.zscale
	return sx, sy
}

// getPolyPoints returns the 'points' attribute of the polygon joining four adjacent cells.
func (p projection) getPolyPoints(
	cellA Cell,
	cellB Cell,
	cellC Cell,
	cellD Cell,
) string {
	return p.makeFuncPolygon("", cellA, cellB, cellC, cellD).String()
}

// makeFuncPolygon projects the surface patch between four adjacent cells: Cell-A is bottom
// left, Cell-B is top left, Cell-C is top right, and Cell-D is bottom right.
func (p projection) makeFuncPolygon(
	id string,
	cellA Cell,
	cellB Cell,
	cellC Cell,
	cellD Cell,
) (fp *funcPolygon) {
	fp = &funcPolygon{
		Id: id,
	}
	fp.ax, fp.ay = p.project(float64(cellA.X), float64(cellA.Y), cellA.Max)
	fp.bx, fp.by = p.project(float64(cellB.X), float64(cellB.Y), cellB.Max)
	fp.cx, fp.cy = p.project(float64(cellC.X), float64(cellC.Y), cellC.Max)
	fp.dx, fp.dy = p.project(float64(cellD.X), float64(cellD.Y), cellD.Max)
	return
}

type funcPolygon struct {
	Id     string
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// String returns a string suitable for the svg-polygon 'points' attribute.
// The values are truncated to ints, which is a bit of premature svg-optimization.
func (fp *funcPolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func minFour(f1, f2, f3, f4 float64) float64 {
	return math.Min(
		math.Min(f1, f2),
		math.Min(f3, f4),
	)
}

func maxFour(f1, f2, f3, f4 float64) float64 {
	return math.Max(
		math.Max(f1, f2),
		math.Max(f3, f4),
	)
}

func (fp *funcPolygon) MinX() float64 {
	return minFour(fp.ax, fp.bx, fp.cx, fp.dx)
}

func (fp *funcPolygon) MinY() float64 {
	return minFour(fp.ay, fp.by, fp.cy, fp.dy)
}

func (fp *funcPolygon) MaxX() float64 {
	return maxFour(fp.ax, fp.bx, fp.cx, fp.dx)
}

func (fp *funcPolygon) MaxY() float64 {
	return maxFour(fp.ay, fp.by, fp.cy, fp.dy)
}

func avg(f ...float64) float64 {
	n, sum := 0.0, 0.0
	for _, fn := range f {
		sum += fn
		n++
	}
	return sum / n
}

// Returns the set of view updates needed for the view to reflect current values.
func (vf *ValueFunction) onUpdate(
	cells [][]Cell,
) (ops []fastview.EleUpdate) {
	if len(cells) < 2 || len(cells[0]) < 2 {
		return nil
	}
	// Each polygon is shaded by the average of its four values, relative to the extremes.
	minVal, maxVal := valueRange(cells)

	// First build up the polygons, so we can later center their svg coordinates within the view.
	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for ri, row := range cells[:len(cells)-1] {
		for ci, cell := range row[:len(row)-1] {
			cellA := cells[ri+1][ci]
			cellB := cells[ri][ci]
			cellC := cells[ri][ci+1]
			cellD := cells[ri+1][ci+1]
			polygon := vf.view.makeFuncPolygon(
				fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y),
				cellA, cellB, cellC, cellD,
			)

			xmin = math.Min(xmin, polygon.MinX())
			xmax = math.Max(xmax, polygon.MaxX())

			ymin = math.Min(ymin, polygon.MinY())
			ymax = math.Max(ymax, polygon.MaxY())

			avgVal := avg(cellA.Max, cellB.Max, cellC.Max, cellD.Max)
			fill := getRGBFill(avgVal, minVal, maxVal)

			ops = append(ops, fastview.EleUpdate{
				EleId: polygon.Id,
				Ops: []fastview.Op{
					{
						Key:   "points",
						Value: polygon.String(),
					},
					{
						Key:   "fill",
						Value: fill,
					},
				},
			})
		}
	}

	// Shift by the min x and y to bring the plot into view, scaling it down only if it
	// does not fit.
	scaler := math.Min(
		math.Min(
			math.Abs(vf.view.width*2/(xmax-xmin)),
			math.Abs(vf.view.height*2/(ymax-ymin)),
		),
		1.0,
	)

	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})

	return
}

// valueRange returns the min and max cell values.
func valueRange(cells [][]Cell) (minVal, maxVal float64) {
	minVal, maxVal = math.MaxFloat64, -math.MaxFloat64
	for _, row := range cells {
		for _, cell := range row {
			minVal = math.Min(minVal, cell.Max)
			maxVal = math.Max(maxVal, cell.Max)
		}
	}
	return
}

// Returns an RGB value defined by where avgVal lies along the number line between minVal and
// maxVal: red for the highest values, blue for the lowest.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	redPct := 50
	if span := maxVal - minVal; span > 0 {
		redPct = int(math.Round(100.0 * (avgVal - minVal) / span))
	}
	redPct = min(max(redPct, 0), 100)
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse defines an svg of polygons plotting the value function surface as a 2D projection.
func (vf *ValueFunction) Parse(
	t *template.Template,
) (name string, err error) {
	name = vf.id
	addedMap := template.FuncMap{
		"getPolyPoints": vf.view.getPolyPoints,
	}
	// The order of polygon creation forms the surface by obscuring prior polygons.
	_, err = t.Funcs(addedMap).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(vf.view.cellDim)) + ` }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			{{ $half_height := div $cell_height 2 }}
			{{ $half_width := div $cell_width 2 }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 1;">
				<g id="` + vf.id + "-group" + `" transform="translate(0 0)">
				{{ $cells := . }}
				{{ range $ri, $row := $cells }}
					{{ if lt $ri $num_x_polys }}
						{{ range $j, $unused := $row }}
							{{ $ci := sub (sub (len $row) $j) 1 }}
							{{ $cell := index $row $ci }}
							{{ if lt $ci $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-value-polygon"
									fill="black" fill-opacity="1.0"
									{{ $cell_a := index $cells (add $ri 1) $ci }}
									{{ $cell_b := index $cells $ri $ci }}
									{{ $cell_c := index $cells $ri (add $ci 1) }}
									{{ $cell_d := index $cells (add $ri 1) (add $ci 1) }}
									points="{{ getPolyPoints $cell_a $cell_b $cell_c $cell_d }}" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
