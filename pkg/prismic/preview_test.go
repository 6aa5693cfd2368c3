package prismic

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestPreviewSessionResolvesMainDocument(t *testing.T) {
	f := newFakeRepo(t)
	f.searchBody = func(r *http.Request) (int, string) {
		if r.URL.Query().Get("ref") != f.server.URL+"/previews/abc" {
			return http.StatusBadRequest, "wrong ref"
		}
		return http.StatusOK, `{"results":[{"id":"DOC1","uid":"the-bridge","type":"sketchplanation","data":{}}]}`
	}
	c := f.client(Options{})
	f.server.Config.Handler.(*http.ServeMux).HandleFunc("/previews/abc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mainDocument":"DOC1"}`)
	})

	got, err := c.PreviewSession(context.Background(), f.server.URL+"/previews/abc", nil, "/")
	if err != nil {
		t.Fatalf("PreviewSession: %v", err)
	}
	if got != "/the-bridge" {
		t.Fatalf("got %q, want /the-bridge", got)
	}
}

func TestPreviewSessionWithoutDocument(t *testing.T) {
	f := newFakeRepo(t)
	c := f.client(Options{})
	f.server.Config.Handler.(*http.ServeMux).HandleFunc("/previews/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	got, err := c.PreviewSession(context.Background(), f.server.URL+"/previews/empty", nil, "/")
	if err != nil {
		t.Fatalf("PreviewSession: %v", err)
	}
	if got != "/" {
		t.Fatalf("got %q, want /", got)
	}
}

func TestPreviewTokenMustBelongToRepository(t *testing.T) {
	f := newFakeRepo(t)
	c := f.client(Options{})

	for _, token := range []string{"", "not a url", "https://evil.example.com/previews/x", "file:///etc/passwd"} {
		if _, err := c.PreviewSession(context.Background(), token, nil, "/"); err == nil {
			t.Errorf("expected token %q to be rejected", token)
		}
	}
}

func TestSameRepository(t *testing.T) {
	tests := []struct {
		endpoint, token string
		want            bool
	}{
		{"sketchplanations.cdn.prismic.io", "sketchplanations.prismic.io", true},
		{"sketchplanations.cdn.prismic.io", "other.prismic.io", false},
		{"sketchplanations.cdn.prismic.io", "sketchplanations.evil.io", false},
		{"127.0.0.1", "127.0.0.1", true},
		{"127.0.0.1", "10.0.0.1", false},
	}
	for _, tt := range tests {
		if got := sameRepository(tt.endpoint, tt.token); got != tt.want {
			t.Errorf("sameRepository(%q, %q) = %v, want %v", tt.endpoint, tt.token, got, tt.want)
		}
	}
}
