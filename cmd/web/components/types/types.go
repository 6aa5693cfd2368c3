package types

import (
	"github.com/sketchplanations/sketchweb/pkg/gallery"
)

// PageData represents data passed to templates
type PageData struct {
	Title    string
	SiteName string
	Query    string
	// Token identifies the server-rendered search for the live session.
	Token       string
	Images      []gallery.Image
	Rows        []gallery.Row
	HasSearched bool
	Error       string
	Sketch      *Sketch // For detail pages
	Preview     bool
	Gallery     Geometry
	Version     string // Application version (for footer display)
}

// Geometry is the gallery layout the page was rendered with.
type Geometry struct {
	ContainerWidth  float64
	TargetRowHeight float64
	Margin          float64
}

// Sketch is a single sketch on its detail page.
type Sketch struct {
	UID         string
	Title       string
	Description string
	Published   string
	Image       gallery.Image
}

// NavLink is an entry of the site navigation.
type NavLink struct {
	Label string
	Href  string
}
