package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"racetrack/reinforcement"
	"racetrack/server/fastview"
	"racetrack/server/root_view"

	"github.com/gorilla/mux"
)

// Time allowed for in-flight requests to complete on shutdown.
const shutdownGracePeriod = 5 * time.Second

// StatsSource provides the running training stats, e.g. *reinforcement.Stats.
type StatsSource interface {
	Snapshot() reinforcement.StatsSnapshot
}

// Server serves a live view of training: the main page with its views, the websocket that
// pushes view updates, the training stats as json, and the run artifacts as static files.
//
// The views' ele-update channel has a single consumer, so concurrent page clients split the
// updates between them; in practice there is one client, the developer's browser.
type Server struct {
	addr     string
	rootView *root_view.RootView
	stats    StatsSource
	runsDir  string
}

// NewServer initializes all of the views and returns a server. Snapshots should be sent
// without blocking, since nothing reads them faster than the page is published.
func NewServer(
	ctx context.Context,
	addr string,
	initial reinforcement.ValueSnapshot,
	snapshots <-chan reinforcement.ValueSnapshot,
	stats StatsSource,
	runsDir string,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, initial, snapshots)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	return &Server{
		addr:     addr,
		rootView: rootView,
		stats:    stats,
		runsDir:  runsDir,
	}, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", server.serveWebsocket)
	r.HandleFunc("/stats", server.serveStats).Methods(http.MethodGet)
	if server.runsDir != "" {
		r.PathPrefix("/runs/").Handler(
			http.StripPrefix("/runs/", http.FileServer(http.Dir(server.runsDir))))
	}
	return r
}

// Serve listens until @ctx is done, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) (err error) {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Println("shutdown:", shutdownErr)
		}
	}()

	log.Printf("serving views on %s", server.addr)
	if err = srv.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("serve: %w", err)
	}
	return
}

// serveWebsocket publishes view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	defer cli.Close()

	if err = cli.Sync(); err != nil {
		log.Println("websocket:", err)
	}
}

func (server *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.stats.Snapshot()); err != nil {
		log.Println("stats:", err)
	}
}

// Serve the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, server.rootView.Initial()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
