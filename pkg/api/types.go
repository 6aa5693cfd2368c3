package api

import (
	"time"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type LayoutRequest struct {
	Images    []gallery.Image `json:"images"`
	Width     float64         `json:"width"`
	RowHeight float64         `json:"row_height"`
	Margin    *float64        `json:"margin,omitempty"`
}

type LayoutResponse struct {
	Rows  []gallery.Row `json:"rows"`
	Count int           `json:"count"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
