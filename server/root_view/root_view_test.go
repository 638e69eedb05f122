package root_view

import (
	"bytes"
	"context"
	"html/template"
	"math/rand"
	"testing"
	"time"

	"racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server/fastview"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBatchify(t *testing.T) {
	Convey("When batching updates", t, func() {
		done := make(chan struct{})
		defer close(done)
		source := make(chan []fastview.EleUpdate)
		output := batchify(done, source, time.Hour)

		go func() {
			source <- []fastview.EleUpdate{{EleId: "a", Ops: []fastview.Op{{Key: "x", Value: "1"}}}}
			source <- []fastview.EleUpdate{{EleId: "a", Ops: []fastview.Op{{Key: "x", Value: "2"}}}}
			source <- []fastview.EleUpdate{{EleId: "b"}}
			close(source)
		}()

		Convey("Only the latest update per element is sent, flushed on source closure", func() {
			batch := <-output
			So(batch, ShouldHaveLength, 2)
			for _, update := range batch {
				if update.EleId == "a" {
					So(update.Ops[0].Value, ShouldEqual, "2")
				}
			}
			_, ok := <-output
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRootView(t *testing.T) {
	Convey("When building the root view from a trained snapshot", t, func() {
		cfg, err := reinforcement.Decode(reinforcement.DefaultViper())
		So(err, ShouldBeNil)
		c, err := reinforcement.NewController(
			grid_world.MustParseTrack(grid_world.DebugTrack), cfg, rand.New(rand.NewSource(3)))
		So(err, ShouldBeNil)
		So(c.Run(context.Background(), 5), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rv, err := NewRootView(ctx, c.Snapshot(), make(chan reinforcement.ValueSnapshot))
		So(err, ShouldBeNil)
		So(rv.Initial(), ShouldHaveLength, 10)

		Convey("The page renders every view", func() {
			tmpl := template.New("index.html")
			name, err := rv.Parse(tmpl)
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "mainpage")

			buf := &bytes.Buffer{}
			So(tmpl.ExecuteTemplate(buf, name, rv.Initial()), ShouldBeNil)
			page := buf.String()
			So(page, ShouldContainSubstring, `id="valuesgrid"`)
			So(page, ShouldContainSubstring, `id="valuefunction"`)
			So(page, ShouldContainSubstring, `id="1-9-value-text"`)
			So(page, ShouldContainSubstring, "window.location.host")
		})
	})
}
