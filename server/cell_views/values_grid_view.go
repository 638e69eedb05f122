package cell_views

import (
	"fmt"
	"html/template"

	"racetrack/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid shows the max state value and greedy velocity arrow of every cell of the track.
type ValuesGrid struct {
	id      string
	cellDim int
	updates <-chan []fastview.EleUpdate
}

// NewValuesGrid sizes the grid's cells such that the whole track fits in roughly a fixed area.
func NewValuesGrid(
	done <-chan struct{},
	initial [][]Cell,
	cells <-chan [][]Cell,
) (vg *ValuesGrid) {
	vg = &ValuesGrid{
		id:      "valuesgrid",
		cellDim: fitCellDim(initial, 800, 24, 60),
	}
	vg.updates = channerics.Convert(done, cells, vg.onUpdate)
	return
}

// fitCellDim returns the cell size in pixels fitting @cells within @area, clamped to [lo,hi].
func fitCellDim(cells [][]Cell, area, lo, hi int) int {
	n := len(cells)
	if n > 0 {
		n = max(n, len(cells[0]))
	}
	if n == 0 {
		return hi
	}
	return min(max(area/n, lo), hi)
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

func valueText(cell Cell) string {
	if !cell.Visited {
		return ""
	}
	return fmt.Sprintf("%.0f", cell.Max)
}

// Returns the set of view updates needed for the view to reflect the current values.
func (vg *ValuesGrid) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	for _, row := range cells {
		for _, cell := range row {
			if !cell.Road {
				continue
			}
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("%d-%d-value-text", cell.X, cell.Y),
				Ops: []fastview.Op{
					{Key: "textContent", Value: valueText(cell)},
				},
			})
			opacity := "0"
			if cell.Visited && cell.PolicyArrowScale > 0 {
				opacity = "1"
			}
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("%d-%d-policy-arrow", cell.X, cell.Y),
				Ops: []fastview.Op{
					{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)},
					{Key: "stroke-width", Value: fmt.Sprintf("%d", max(cell.PolicyArrowScale/2, 1))},
					{Key: "opacity", Value: opacity},
				},
			})
		}
	}
	return
}

// Parse defines the grid's svg template. Off-road cells are drawn but never updated.
func (vg *ValuesGrid) Parse(t *template.Template) (name string, err error) {
	name = vg.id
	_, err = t.Funcs(template.FuncMap{"valueText": valueText}).Parse(
		`{{ define "` + name + `" }}
		<div id="state_values">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $cell_width := ` + fmt.Sprintf("%d", vg.cellDim) + ` }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			{{ $half_height := div $cell_height 2 }}
			{{ $half_width := div $cell_width 2 }}
			<svg id="` + vg.id + `"
				width="{{ add $width 1 }}px"
				height="{{ add $height 1 }}px"
				style="shape-rendering: crispEdges; font-size: {{ div $cell_width 4 }}px;">
				{{ range $col := . }}
					{{ range $cell := $col }}
					<g>
						<rect
							x="{{ mult $cell.X $cell_width }}"
							y="{{ mult $cell.Y $cell_height }}"
							width="{{ $cell_width }}"
							height="{{ $cell_height }}"
							fill="{{ $cell.Fill }}"
							stroke="black"
							stroke-width="1"/>
						{{ if $cell.Road }}
						<text id="{{$cell.X}}-{{$cell.Y}}-value-text"
							x="{{ add (mult $cell.X $cell_width) $half_width }}"
							y="{{ add (mult $cell.Y $cell_height) (div $half_height 2) }}"
							stroke="blue"
							dominant-baseline="central" text-anchor="middle"
							>{{ valueText $cell }}</text>
						<g transform="translate({{ add (mult $cell.X $cell_width) $half_width }}, {{ add (mult $cell.Y $cell_height) (add $half_height (div $half_height 2)) }})">
							<text id="{{$cell.X}}-{{$cell.Y}}-policy-arrow"
							stroke="blue" stroke-width="1" opacity="0"
							dominant-baseline="central" text-anchor="middle"
							transform="rotate({{ $cell.PolicyArrowRotation }})"
							>&uarr;</text>
						</g>
						{{ end }}
					</g>
					{{ end }}
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}
