package components

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sketchplanations/sketchweb/cmd/web/components/types"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/session"
)

var bridge = gallery.Image{UID: "bridge", Src: "https://images.prismic.io/s/bridge.png", Width: 1200, Height: 800, Alt: "Bridge - Sketchplanations"}

func TestRenderResults(t *testing.T) {
	p := search.Params{ContainerWidth: 1000, TargetRowHeight: 400, Margin: 16}

	tests := []struct {
		name    string
		state   session.State
		want    []string
		notWant []string
	}{
		{
			name:    "before any search",
			state:   session.State{},
			notWant: []string{"No results", "Search failed", "gallery"},
		},
		{
			name:    "no matches",
			state:   session.State{Query: "zzz", HasSearched: true},
			want:    []string{"No results"},
			notWant: []string{"Search failed", `class="gallery"`},
		},
		{
			name:    "matches",
			state:   session.State{Query: "bridge", HasSearched: true, Results: []gallery.Image{bridge}},
			want:    []string{`class="gallery"`, `data-count="1"`, `href="/bridge"`, `alt="Bridge - Sketchplanations"`, `gallery-row is-final`},
			notWant: []string{"No results"},
		},
		{
			name:    "failure",
			state:   session.State{Query: "bridge", HasSearched: true, Err: errors.New("boom")},
			want:    []string{"Search failed", SearchFailedMessage},
			notWant: []string{"No results", "boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := RenderResults(context.Background(), tt.state, p)
			if err != nil {
				t.Fatalf("RenderResults: %v", err)
			}
			for _, s := range tt.want {
				if !strings.Contains(html, s) {
					t.Errorf("expected %q in %q", s, html)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(html, s) {
					t.Errorf("did not expect %q in %q", s, html)
				}
			}
		})
	}
}

func TestSearchBodyEscapesQuery(t *testing.T) {
	var buf strings.Builder
	data := types.PageData{Query: `"><script>`, Token: "tok"}
	if err := SearchBody(data).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<script>") {
		t.Fatalf("query was not escaped: %s", html)
	}
	if !strings.Contains(html, `data-token="tok"`) {
		t.Errorf("expected the seed token in %s", html)
	}
}

func TestPageTitle(t *testing.T) {
	tests := []struct{ site, title, want string }{
		{"Sketchplanations", "", "Sketchplanations"},
		{"Sketchplanations", "Bridge", "Bridge - Sketchplanations"},
		{"", "Bridge", "Bridge - Sketchplanations"},
		{"Sketchplanations", "Sketchplanations", "Sketchplanations"},
	}
	for _, tt := range tests {
		if got := PageTitle(tt.site, tt.title); got != tt.want {
			t.Errorf("PageTitle(%q, %q) = %q, want %q", tt.site, tt.title, got, tt.want)
		}
	}
}
