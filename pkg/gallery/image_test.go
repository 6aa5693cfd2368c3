package gallery

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"

	"github.com/sketchplanations/sketchweb/pkg/prismic"
)

func doc(id, uid, data string) prismic.Document {
	return prismic.Document{ID: id, UID: uid, Type: "sketchplanation", Data: json.RawMessage(data)}
}

func TestMapDropsDocumentsWithoutImage(t *testing.T) {
	docs := []prismic.Document{
		doc("1", "bridge-types", `{"title":[{"type":"heading1","text":"Bridge types"}],"image":{"url":"https://images.prismic.io/s/bridge.png","alt":"Bridges","dimensions":{"width":1200,"height":800}}}`),
		doc("2", "bridge-no-image", `{"title":"Bridge without image"}`),
		doc("3", "golden-gate", `{"title":"Golden Gate","image":{"url":"https://images.prismic.io/s/gg.png","alt":null,"dimensions":{"width":600,"height":900}}}`),
	}

	got := Map(docs)
	want := []Image{
		{UID: "bridge-types", Src: "https://images.prismic.io/s/bridge.png", Width: 1200, Height: 800, Alt: "Bridges"},
		{UID: "golden-gate", Src: "https://images.prismic.io/s/gg.png", Width: 600, Height: 900, Alt: "Golden Gate - Sketchplanations"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Map() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestMapRejectsUnusableImages(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no data", ``},
		{"data not an object", `[1,2,3]`},
		{"image null", `{"image":null}`},
		{"empty url", `{"image":{"url":"","dimensions":{"width":10,"height":10}}}`},
		{"no dimensions", `{"image":{"url":"https://x/y.png"}}`},
		{"zero width", `{"image":{"url":"https://x/y.png","dimensions":{"width":0,"height":10}}}`},
		{"negative height", `{"image":{"url":"https://x/y.png","dimensions":{"width":10,"height":-4}}}`},
		{"wrong types", `{"image":{"url":42,"dimensions":{"width":"10","height":10}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Map([]prismic.Document{doc("x", "x", tt.data)}); len(got) != 0 {
				t.Fatalf("expected document to be dropped, got %+v", got)
			}
		})
	}
}

func TestMapEmptyAltUsesTitle(t *testing.T) {
	got := Map([]prismic.Document{doc("1", "opportunity-cost", `{"title":"Opportunity cost","image":{"url":"https://x/oc.png","alt":"","dimensions":{"width":10,"height":10}}}`)})
	if len(got) != 1 || got[0].Alt != "Opportunity cost - Sketchplanations" {
		t.Fatalf("unexpected alt: %+v", got)
	}
}

func TestMapEmptyInput(t *testing.T) {
	if got := Map(nil); len(got) != 0 {
		t.Fatalf("expected no images, got %+v", got)
	}
}

func TestImageURLs(t *testing.T) {
	img := Image{UID: "a", Src: "https://images.prismic.io/s/a.png?auto=compress,format", Width: 10, Height: 10}

	resized, err := url.Parse(img.Resized(640))
	if err != nil {
		t.Fatal(err)
	}
	if resized.Query().Get("w") != "640" || resized.Query().Get("auto") != "compress,format" {
		t.Fatalf("unexpected resized url %s", resized)
	}

	placeholder, err := url.Parse(img.Placeholder())
	if err != nil {
		t.Fatal(err)
	}
	q := placeholder.Query()
	if q.Get("w") != "400" || q.Get("blur") != "200" || q.Get("px") != "16" {
		t.Fatalf("unexpected placeholder url %s", placeholder)
	}

	if img.Href() != "/a" {
		t.Fatalf("unexpected href %s", img.Href())
	}
}
