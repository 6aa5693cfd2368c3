package search

import (
	"math"
	"strconv"

	"github.com/sketchplanations/sketchweb/pkg/gallery"
)

// Bounds on the geometry a client may ask a layout for.
const (
	MaxContainerWidth = 10000
	MaxRowHeight      = 2000
)

// Params describes one search and the gallery it is laid out in.
type Params struct {
	Query           string
	ContainerWidth  float64
	TargetRowHeight float64
	Margin          float64
}

// DefaultParams returns the gallery geometry used when a request names none.
func DefaultParams() Params {
	return Params{
		ContainerWidth:  1000,
		TargetRowHeight: 400,
		Margin:          16,
	}
}

// Layout lays images out with the geometry of p.
func (p Params) Layout(images []gallery.Image) []gallery.Row {
	return gallery.Layout(images, p.TargetRowHeight, p.ContainerWidth, p.Margin)
}

// ParseSearchParams reads q, width, row_height and margin from HTTP query
// parameters. Missing, malformed or out of range numbers keep the value from
// defaults. The query is returned as typed; Execute normalizes it.
func ParseSearchParams(queryParams map[string][]string, defaults Params) Params {
	params := defaults
	params.Query = ""

	if q := queryParams["q"]; len(q) > 0 {
		params.Query = q[0]
	}
	if v, ok := parseFloat(queryParams["width"]); ok && ValidWidth(v) {
		params.ContainerWidth = v
	}
	if v, ok := parseFloat(queryParams["row_height"]); ok && ValidRowHeight(v) {
		params.TargetRowHeight = v
	}
	if v, ok := parseFloat(queryParams["margin"]); ok && v >= 0 && v < params.ContainerWidth {
		params.Margin = v
	}
	return params
}

func parseFloat(values []string) (float64, bool) {
	if len(values) == 0 || values[0] == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(values[0], 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ValidWidth reports whether v can be used as a container width.
func ValidWidth(v float64) bool {
	return v > 0 && v <= MaxContainerWidth
}

// ValidRowHeight reports whether v can be used as a target row height.
func ValidRowHeight(v float64) bool {
	return v > 0 && v <= MaxRowHeight
}

// Results is a completed search as the API and pages present it.
type Results struct {
	Query       string          `json:"query"`
	Images      []gallery.Image `json:"images"`
	Rows        []gallery.Row   `json:"rows"`
	HasSearched bool            `json:"has_searched"`
}

// NewResults lays images out for p. HasSearched is set for any non-blank query.
func NewResults(p Params, images []gallery.Image) *Results {
	if images == nil {
		images = []gallery.Image{}
	}
	rows := p.Layout(images)
	if rows == nil {
		rows = []gallery.Row{}
	}
	return &Results{
		Query:       NormalizeQuery(p.Query),
		Images:      images,
		Rows:        rows,
		HasSearched: NormalizeQuery(p.Query) != "",
	}
}
