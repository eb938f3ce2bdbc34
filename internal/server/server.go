// Package server exposes the rendered preview over HTTP.
//
// It serves the latest rendered document, pushes updates to browsers
// over server-sent events, and reports pipeline statistics. Display
// concerns (theming, scroll position) belong to the page, not here.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/render"
)

// Server is the preview HTTP server.
type Server struct {
	router chi.Router
	log    *slog.Logger
	stats  func() preview.Stats

	mu     sync.Mutex
	latest render.Result
	has    bool
	subs   map[chan struct{}]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithStats wires a statistics snapshot source for GET /stats.
func WithStats(fn func() preview.Stats) Option {
	return func(s *Server) {
		s.stats = fn
	}
}

// New creates the server.
func New(log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:  log,
		subs: make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.log))

	r.Get("/", s.handleIndex)
	r.Get("/preview", s.handlePreview)
	r.Get("/events", s.handleEvents)
	r.Get("/stats", s.handleStats)
	r.Get("/health", s.handleHealth)

	s.router = r
}

// Update publishes a new render result and wakes SSE subscribers.
func (s *Server) Update(res render.Result) {
	s.mu.Lock()
	s.latest = res
	s.has = true
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Latest returns the most recent result, if any.
func (s *Server) Latest() (render.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// handlePreview returns the latest rendered document body.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if res.Err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "<pre class=%q>render error (version %d): %v</pre>",
			"render-error", res.Version, res.Err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Document-Version", fmt.Sprintf("%d", res.Version))
	_, _ = w.Write([]byte(res.HTML))
}

// handleEvents streams a "refresh" event to the browser whenever a new
// result lands.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	// Nudge once on connect so a freshly opened page pulls the preview.
	fmt.Fprint(w, "event: refresh\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			fmt.Fprint(w, "event: refresh\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		http.Error(w, `{"error":"stats unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.stats())
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>artisand preview</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1rem; font-family: sans-serif; line-height: 1.55; }
pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
.render-error { color: #a00; }
</style>
</head>
<body>
<main id="preview">loading&hellip;</main>
<script>
const main = document.getElementById("preview");
async function refresh() {
  const resp = await fetch("/preview");
  if (resp.status !== 204) { main.innerHTML = await resp.text(); }
}
new EventSource("/events").addEventListener("refresh", refresh);
refresh();
</script>
</body>
</html>
`
