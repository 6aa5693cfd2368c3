// Package gallery turns repository documents into layout-ready images and
// packs them into justified rows: every row shares one height and, except
// for a short final row, fills the container width exactly.
package gallery

import (
	"net/url"
	"strconv"

	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
)

// AltSuffix is appended to the title when a sketch image has no alt text.
const AltSuffix = " - Sketchplanations"

// Image is a sketch ready for layout. Width and Height are the intrinsic pixel
// dimensions and are always positive for images produced by Map.
type Image struct {
	UID    string `json:"uid"`
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Alt    string `json:"alt"`
}

// Valid reports whether the image can take part in a layout.
func (i Image) Valid() bool {
	return i.Width > 0 && i.Height > 0 && i.Src != ""
}

// AspectRatio is width over height; zero for invalid images.
func (i Image) AspectRatio() float64 {
	if i.Width <= 0 || i.Height <= 0 {
		return 0
	}
	return float64(i.Width) / float64(i.Height)
}

// Href is the detail page of the sketch.
func (i Image) Href() string {
	return "/" + i.UID
}

// Resized returns Src asking the image service for the given display width.
func (i Image) Resized(width int) string {
	return withParams(i.Src, map[string]string{"w": strconv.Itoa(width)})
}

// Placeholder is a tiny blurred rendition shown until the real image loads.
func (i Image) Placeholder() string {
	return withParams(i.Src, map[string]string{"w": "400", "blur": "200", "px": "16"})
}

func withParams(src string, params map[string]string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type imageField struct {
	URL        string  `json:"url"`
	Alt        *string `json:"alt"`
	Dimensions *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimensions"`
}

// Map normalizes documents into images. A document without a usable image
// (missing field, empty url, non-positive dimensions) is dropped with a
// warning; the remaining documents keep their order.
func Map(docs []prismic.Document) []Image {
	l := log.ForService("gallery")
	images := make([]Image, 0, len(docs))
	for _, doc := range docs {
		img, ok := mapDocument(doc)
		if !ok {
			l.Warnf("dropping document %q (uid %q): no usable image", doc.ID, doc.UID)
			continue
		}
		images = append(images, img)
	}
	return images
}

func mapDocument(doc prismic.Document) (Image, bool) {
	var field imageField
	if !doc.Field("image", &field) || field.URL == "" || field.Dimensions == nil {
		return Image{}, false
	}

	alt := ""
	if field.Alt != nil {
		alt = *field.Alt
	}
	if alt == "" {
		alt = doc.Text("title") + AltSuffix
	}

	img := Image{
		UID:    doc.UID,
		Src:    field.URL,
		Width:  field.Dimensions.Width,
		Height: field.Dimensions.Height,
		Alt:    alt,
	}
	return img, img.Valid()
}
