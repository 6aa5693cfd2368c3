// Package api serves the JSON endpoints of the site: search with gallery
// layout, layout alone for client-side resizes, mirror stats and health.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/storage"
)

// Searcher runs a search and lays out its results.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*search.Results, error)
}

// StatsProvider reports what the local mirror holds.
type StatsProvider interface {
	Stats(ctx context.Context) (*storage.Stats, error)
}

type Server struct {
	searcher Searcher
	geometry func() search.Params
	stats    StatsProvider
	l        *log.Logger
}

// NewServer creates the API. geometry supplies default layout parameters;
// stats may be nil when the mirror is not in use.
func NewServer(searcher Searcher, geometry func() search.Params, stats StatsProvider) *Server {
	if geometry == nil {
		geometry = search.DefaultParams
	}
	return &Server{
		searcher: searcher,
		geometry: geometry,
		stats:    stats,
		l:        log.ForService("api"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.l.Errorf("error encoding JSON response: %v", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Encoding failed","message":"The response could not be encoded"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.l.Warnf("error writing JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// CorsMiddleware lets any origin call the read-only API.
func CorsMiddleware(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(next)
}
