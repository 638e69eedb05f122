package server

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server/fastview"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type fixedStats reinforcement.StatsSnapshot

func (fs fixedStats) Snapshot() reinforcement.StatsSnapshot {
	return reinforcement.StatsSnapshot(fs)
}

func trainedSnapshot() reinforcement.ValueSnapshot {
	cfg, err := reinforcement.Decode(reinforcement.DefaultViper())
	if err != nil {
		panic(err)
	}
	c, err := reinforcement.NewController(
		grid_world.MustParseTrack(grid_world.DebugTrack), cfg, rand.New(rand.NewSource(5)))
	if err != nil {
		panic(err)
	}
	if err = c.Run(context.Background(), 5); err != nil {
		panic(err)
	}
	return c.Snapshot()
}

func TestServer(t *testing.T) {
	Convey("Given a server over a trained snapshot", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		runsDir := t.TempDir()
		So(os.WriteFile(filepath.Join(runsDir, "returns.txt"), []byte("-12\n"), 0o644), ShouldBeNil)

		snaps := make(chan reinforcement.ValueSnapshot)
		stats := fixedStats{Episodes: 5, Finished: 4, LastReturn: -9, MeanReturn: -11.5, BestReturn: -7}
		srv, err := NewServer(ctx, ":0", trainedSnapshot(), snaps, stats, runsDir)
		So(err, ShouldBeNil)

		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		Convey("The stats are served as json", func() {
			resp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.Header.Get("Content-Type"), ShouldEqual, "application/json")

			var got reinforcement.StatsSnapshot
			So(json.NewDecoder(resp.Body).Decode(&got), ShouldBeNil)
			So(got, ShouldResemble, reinforcement.StatsSnapshot(stats))
		})

		Convey("The index page renders the views", func() {
			resp, err := http.Get(ts.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `id="valuesgrid"`)
			So(string(body), ShouldContainSubstring, `id="valuefunction"`)
		})

		Convey("Only GET is allowed on the index", func() {
			resp, err := http.Post(ts.URL+"/", "text/plain", strings.NewReader(""))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Run artifacts are served as files", func() {
			resp, err := http.Get(ts.URL + "/runs/returns.txt")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "-12\n")
		})

		Convey("Websocket clients receive view updates", func() {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			// Updates are throttled, so keep sending until one is published.
			snap := trainedSnapshot()
			go func() {
				for {
					select {
					case snaps <- snap:
					case <-ctx.Done():
						return
					}
					time.Sleep(10 * time.Millisecond)
				}
			}()

			So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			var updates []fastview.EleUpdate
			So(conn.ReadJSON(&updates), ShouldBeNil)
			So(updates, ShouldNotBeEmpty)
		})
	})
}
