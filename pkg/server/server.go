// Package server exposes the high-score table over a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/scoring"
)

// DefaultAddr is the listen address used by the scores tool.
const DefaultAddr = ":8080"

// SongSummary is one row of the song listing.
type SongSummary struct {
	Song     string  `json:"song"`
	Best     int     `json:"best"`
	Accuracy float64 `json:"accuracy"`
	Records  int     `json:"records"`
}

// SongScores is the full record list of a song.
type SongScores struct {
	Song    string                    `json:"song"`
	Records []scoring.HighScoreRecord `json:"records"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server serves the table held by a scoring.Store. The store is read on every
// request so sessions finished while the server runs show up immediately.
type Server struct {
	store   scoring.Store
	log     *slog.Logger
	origins []string
	router  *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAllowedOrigins sets the CORS origins. Empty means any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server for store.
func New(store scoring.Store, opts ...Option) *Server {
	s := &Server{
		store: store,
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter().StrictSlash(true)
	router.UseEncodedPath()
	router.HandleFunc("/scores", s.handleSongs).Methods("GET")
	router.HandleFunc("/scores/{song}", s.handleSong).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router = router
	return s
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}
	if len(s.origins) > 0 {
		opts.AllowedOrigins = s.origins
	}
	return cors.New(opts).Handler(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Serving high scores", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	table, err := s.store.Load()
	if err != nil {
		s.log.Error("Failed to load high scores", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load high scores")
		return
	}

	res := make([]SongSummary, 0, len(table))
	for _, song := range table.Songs() {
		list := table[song]
		row := SongSummary{Song: song, Records: len(list)}
		if len(list) > 0 {
			row.Best = list[0].Score
			row.Accuracy = list[0].Accuracy
		}
		res = append(res, row)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	song, err := url.PathUnescape(mux.Vars(r)["song"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed song id")
		return
	}

	table, err := s.store.Load()
	if err != nil {
		s.log.Error("Failed to load high scores", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load high scores")
		return
	}

	list, ok := table[song]
	if !ok {
		writeError(w, http.StatusNotFound, "no scores for "+song)
		return
	}
	writeJSON(w, http.StatusOK, SongScores{Song: song, Records: list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
