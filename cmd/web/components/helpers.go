package components

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sketchplanations/sketchweb/cmd/web/components/types"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
)

// Slogan is shown next to the site logo.
const Slogan = "Explaining one thing a week in a sketch"

// Navigation is the site menu.
var Navigation = []types.NavLink{
	{Label: "Search", Href: "/search"},
	{Label: "Archive", Href: "/archive"},
	{Label: "About", Href: "/about"},
	{Label: "Podcast", Href: "/podcast"},
}

// PageTitle builds the document title: "<title> - <site>" or the site name
// alone.
func PageTitle(siteName, title string) string {
	title = strings.TrimSpace(title)
	if siteName == "" {
		siteName = "Sketchplanations"
	}
	if title == "" || title == siteName {
		return siteName
	}
	return title + " - " + siteName
}

// ImageSizes is the sizes attribute for gallery images.
const ImageSizes = "(min-width: 848px) 800px, (min-width: 640px) calc(100vw - 3rem), 100w"

// srcWidths are the renditions offered in srcset.
var srcWidths = []int{400, 800, 1200, 1600}

// SrcSet lists resized renditions of img for the browser to pick from.
func SrcSet(img gallery.Image) string {
	parts := make([]string, 0, len(srcWidths))
	for _, w := range srcWidths {
		parts = append(parts, fmt.Sprintf("%s %dw", img.Resized(w), w))
	}
	return strings.Join(parts, ", ")
}

const searchIcon = `<svg class="search-icon" xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M23.809 21.646l-6.205-6.205c1.167-1.605 1.857-3.579 1.857-5.711 0-5.365-4.365-9.73-9.731-9.73-5.365 0-9.73 4.365-9.73 9.73 0 5.366 4.365 9.73 9.73 9.73 2.034 0 3.923-.627 5.487-1.698l6.238 6.238 2.354-2.354zm-20.955-11.916c0-3.792 3.085-6.877 6.877-6.877s6.877 3.085 6.877 6.877-3.085 6.877-6.877 6.877c-3.793 0-6.877-3.085-6.877-6.877z"/></svg>`

const loadingIcon = `<svg class="search-loading-icon" xmlns="http://www.w3.org/2000/svg" fill="none" viewBox="0 0 24 24"><circle class="opacity-25" cx="12" cy="12" r="10" stroke="currentColor" stroke-width="4"></circle><path class="opacity-75" fill="currentColor" d="M4 12a8 8 0 018-8V0C5.373 0 0 5.373 0 12h4zm2 5.291A7.962 7.962 0 014 12H0c0 3.042 1.135 5.824 3 7.938l3-2.647z"></path></svg>`

// rowStyle sizes a gallery row, margins included.
func rowStyle(row gallery.Row, margin float64) string {
	return "height:" + px(row.Height+margin) + "px"
}

// placedStyle positions one image inside its row.
func placedStyle(p gallery.Placed, margin float64) string {
	return fmt.Sprintf("margin:%spx;width:%spx;height:%spx", px(margin/2), px(p.DisplayWidth), px(p.DisplayHeight))
}

func px(v float64) string {
	return fmt.Sprintf("%g", math.Round(v*100)/100)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
