package root_view

import (
	"context"
	"html/template"
	"time"

	"racetrack/reinforcement"
	"racetrack/server/cell_views"
	"racetrack/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// BATCH_RATE is the period over which view updates are coalesced before publication.
const BATCH_RATE = time.Millisecond * 20

// RootView is the main page's index.html: the container for all the view components and the
// wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	initial [][]cell_views.Cell
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains. The @initial snapshot sizes
// the views and renders the page; @snapshots drive the views' updates.
func NewRootView(
	ctx context.Context,
	initial reinforcement.ValueSnapshot,
	snapshots <-chan reinforcement.ValueSnapshot,
) (*RootView, error) {
	initialCells := cell_views.Convert(initial)

	views, err := fastview.NewViewBuilder[reinforcement.ValueSnapshot, [][]cell_views.Cell]().
		WithContext(ctx).
		WithModel(snapshots, cell_views.Convert).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, initialCells, cellUpdates)
		}).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValueFunction(done, initialCells, cellUpdates)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		initial: initialCells,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Initial returns the view-model the page is first rendered with.
func (rv *RootView) Initial() [][]cell_views.Cell {
	return rv.initial
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
			"max": func(i, j int) int {
				if i > j {
					return i
				}
				return j
			},
		})

	var bodySpec string
	for _, vc := range rv.views {
		var tname string
		if tname, err = vc.Parse(rt); err != nil {
			return
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: the client websocket applying ele-updates, and a
	// poll of the training stats.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>racetrack</title>
			<script>
				const ws = new WebSocket("ws://" + window.location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				ws.onmessage = function (event) {
					items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}

				setInterval(function () {
					fetch("/stats")
						.then(resp => resp.json())
						.then(stats => {
							document.getElementById("stats").textContent = JSON.stringify(stats, null, 2)
						})
						.catch(err => console.log('stats error: ', err));
				}, 1000);
			</script>
		</head>
		<body>
		<pre id="stats"></pre>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn aggregates the views' ele-update channels into a single, batched channel.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		BATCH_RATE)
}

// batchify batches updates received within @rate before sending, keeping only the latest
// update per ele-id. A pending batch is flushed when the source closes.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		send := func(data map[string]fastview.EleUpdate) bool {
			select {
			case output <- slicedVals(data):
				return true
			case <-done:
				return false
			}
		}

		data := map[string]fastview.EleUpdate{}
		last := time.Now()
		for updates := range channerics.OrDone(done, source) {
			for _, update := range updates {
				data[update.EleId] = update
			}

			if time.Since(last) > rate && len(data) > 0 {
				if !send(data) {
					return
				}
				data = map[string]fastview.EleUpdate{}
				last = time.Now()
			}
		}
		if len(data) > 0 {
			send(data)
		}
	}()

	return output
}

// returns the values of a map as a slice
func slicedVals[T1 comparable, T2 any](mp map[T1]T2) (sliced []T2) {
	for _, v := range mp {
		sliced = append(sliced, v)
	}
	return
}
