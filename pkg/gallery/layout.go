package gallery

import (
	"math"

	"github.com/sketchplanations/sketchweb/pkg/log"
)

// Placed is an image with the size and horizontal offset it is displayed at.
type Placed struct {
	Image
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
	// X is the left edge of the image inside its row, margins included.
	X float64 `json:"x"`
}

// Row is one line of the gallery. Width is the sum of the display widths plus
// one margin per image; it equals the container width for every row but a
// short final one.
type Row struct {
	Images []Placed `json:"images"`
	Height float64  `json:"height"`
	Width  float64  `json:"width"`
	Final  bool     `json:"final"`
}

// Layout packs images into justified rows.
//
// Images are taken in order and their width at targetRowHeight is accumulated
// until the next one, plus one margin per image, would overflow
// containerWidth. The row is then scaled uniformly so it fills the container.
// The last row is never scaled up, only down when a single image is wider
// than the container. Images with a non-positive dimension are skipped.
// Non-finite geometry yields no rows.
//
// Layout has no state: the same arguments always produce the same rows.
func Layout(images []Image, targetRowHeight, containerWidth, margin float64) []Row {
	if !finite(targetRowHeight, containerWidth, margin) {
		return nil
	}
	if targetRowHeight <= 0 || containerWidth <= 0 || margin < 0 || margin >= containerWidth {
		return nil
	}

	var (
		rows    []Row
		pending []Image
		natural float64
	)
	for _, img := range images {
		if img.AspectRatio() == 0 {
			log.ForService("gallery").Debugf("layout skipping %q: %dx%d", img.UID, img.Width, img.Height)
			continue
		}
		w := img.AspectRatio() * targetRowHeight
		if !finite(w) {
			return nil
		}
		if len(pending) > 0 && natural+w+float64(len(pending)+1)*margin > containerWidth {
			rows = append(rows, closeRow(pending, natural, targetRowHeight, containerWidth, margin, false))
			pending, natural = nil, 0
		}
		pending = append(pending, img)
		natural += w
	}
	if len(pending) > 0 {
		rows = append(rows, closeRow(pending, natural, targetRowHeight, containerWidth, margin, true))
	}
	return rows
}

func closeRow(images []Image, natural, target, container, margin float64, final bool) Row {
	available := container - float64(len(images))*margin
	scale := available / natural
	if final && scale > 1 {
		scale = 1
	}

	row := Row{
		Images: make([]Placed, 0, len(images)),
		Height: target * scale,
		Final:  final,
	}
	x := margin / 2
	for _, img := range images {
		w := img.AspectRatio() * target * scale
		row.Images = append(row.Images, Placed{
			Image:         img,
			DisplayWidth:  w,
			DisplayHeight: row.Height,
			X:             x,
		})
		x += w + margin
		row.Width += w + margin
	}
	return row
}

// Count returns the number of images placed in rows.
func Count(rows []Row) int {
	n := 0
	for _, r := range rows {
		n += len(r.Images)
	}
	return n
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}
