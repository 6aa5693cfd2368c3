package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/version"
)

const (
	maxLayoutBody   = 1 << 20
	maxLayoutImages = 1000
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := search.ParseSearchParams(r.URL.Query(), s.geometry())

	// API requires a query parameter
	if search.NormalizeQuery(params.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", "Query parameter 'q' is required")
		return
	}

	results, err := s.searcher.Search(r.Context(), params)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrTransport):
		s.writeError(w, http.StatusBadGateway, "Search failed", "The content repository could not be reached")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "Search cancelled", err.Error())
		return
	default:
		s.l.Errorf("search %q: %v", params.Query, err)
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) HandleLayout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLayoutBody)

	var req LayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if len(req.Images) > maxLayoutImages {
		s.writeError(w, http.StatusBadRequest, "Too many images", fmt.Sprintf("At most %d images can be laid out at once", maxLayoutImages))
		return
	}

	p := s.geometry()
	if req.Width != 0 {
		if !search.ValidWidth(req.Width) {
			s.writeError(w, http.StatusBadRequest, "Invalid width", fmt.Sprintf("Width must be between 0 and %d", search.MaxContainerWidth))
			return
		}
		p.ContainerWidth = req.Width
	}
	if req.RowHeight != 0 {
		if !search.ValidRowHeight(req.RowHeight) {
			s.writeError(w, http.StatusBadRequest, "Invalid row height", fmt.Sprintf("Row height must be between 0 and %d", search.MaxRowHeight))
			return
		}
		p.TargetRowHeight = req.RowHeight
	}
	if req.Margin != nil {
		p.Margin = *req.Margin
	}
	if p.Margin < 0 || p.Margin >= p.ContainerWidth {
		s.writeError(w, http.StatusBadRequest, "Invalid margin", "Margin must be between 0 and the container width")
		return
	}

	rows := p.Layout(req.Images)
	if rows == nil {
		rows = []gallery.Row{}
	}
	s.writeJSON(w, http.StatusOK, LayoutResponse{Rows: rows, Count: gallery.Count(rows)})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, http.StatusNotFound, "Mirror disabled", "The local mirror is not enabled")
		return
	}
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
