package cmd

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"github.com/sketchplanations/sketchweb/pkg/realtime"
	"github.com/sketchplanations/sketchweb/pkg/search"
)

const bridgeDoc = `{"id":"X1","uid":"bridge","type":"sketchplanation","first_publication_date":"2019-01-28T09:45:47+0000",
	"data":{"title":[{"type":"heading1","text":"Bridge"}],"body":[{"type":"paragraph","text":"Spans a gap."}],
	"image":{"url":"https://images.prismic.io/sketchplanations/bridge.png?auto=compress","alt":null,"dimensions":{"width":1200,"height":800}}}}`

// fakeRepository answers the few requests the site makes to Prismic.
type fakeRepository struct {
	server   *httptest.Server
	failing  atomic.Bool
	searches atomic.Int32
}

func newFakeRepository(t *testing.T) *fakeRepository {
	t.Helper()
	f := &fakeRepository{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"refs":[{"id":"master","ref":"MASTER","isMasterRef":true}]}`)
	})
	mux.HandleFunc("/api/v2/documents/search", func(w http.ResponseWriter, r *http.Request) {
		if f.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"unavailable"}`)
			return
		}
		predicates := strings.Join(r.URL.Query()["q"], " ")
		switch {
		case strings.Contains(predicates, "fulltext"):
			f.searches.Add(1)
			if strings.Contains(predicates, `"bridge"`) {
				fmt.Fprintf(w, `{"page":1,"total_pages":1,"results":[%s]}`, bridgeDoc)
				return
			}
		case strings.Contains(predicates, `uid, "bridge"`), strings.Contains(predicates, `document.id, "X1"`):
			fmt.Fprintf(w, `{"page":1,"total_pages":1,"results":[%s]}`, bridgeDoc)
			return
		}
		fmt.Fprint(w, `{"page":1,"total_pages":1,"results":[]}`)
	})
	mux.HandleFunc("/previews/abc", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mainDocument":"X1"}`)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func setupTestWebServer(t *testing.T) (*WebServer, *fakeRepository, http.Handler) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	repo := newFakeRepository(t)
	cfg, err := config.GetDefaultConfig()
	if err != nil {
		t.Fatalf("GetDefaultConfig: %v", err)
	}
	cfg.Prismic.Endpoint = repo.server.URL + "/api/v2"
	cfg.Cache.RedisURL = ""

	s, err := newWebServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newWebServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, repo, s.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSearchPageRendersServerResults(t *testing.T) {
	s, repo, h := setupTestWebServer(t)

	w := get(t, h, "/search?q=bridge")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`class="gallery"`, `href="/bridge"`, `alt="Bridge - Sketchplanations"`, `value="bridge"`, `blur=200`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in the page", want)
		}
	}
	if strings.Contains(body, "No results") {
		t.Error("a search with matches should not say No results")
	}
	if !strings.Contains(body, `data-token="`) || strings.Contains(body, `data-token=""`) {
		t.Error("expected the page to carry a seed token")
	}
	if s.live.Seeds().Len() != 1 {
		t.Errorf("expected one stored seed, got %d", s.live.Seeds().Len())
	}
	if repo.searches.Load() != 1 {
		t.Errorf("expected one repository search, got %d", repo.searches.Load())
	}
}

func TestSearchPageWithoutQuery(t *testing.T) {
	s, repo, h := setupTestWebServer(t)

	for _, target := range []string{"/search", "/search?q=", "/search?q=%20%20"} {
		w := get(t, h, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", target, w.Code)
		}
		body := w.Body.String()
		if strings.Contains(body, "No results") || strings.Contains(body, `class="gallery"`) {
			t.Errorf("%s: nothing should be shown before a search", target)
		}
		if !strings.Contains(body, `id="search-form"`) {
			t.Errorf("%s: expected the search form", target)
		}
	}
	if repo.searches.Load() != 0 {
		t.Errorf("blank queries must not reach the repository, got %d searches", repo.searches.Load())
	}
	if s.live.Seeds().Len() != 0 {
		t.Errorf("blank queries must not store seeds")
	}
}

func TestSearchPageNoResults(t *testing.T) {
	_, _, h := setupTestWebServer(t)

	body := get(t, h, "/search?q=zzz").Body.String()
	if !strings.Contains(body, "No results") {
		t.Error("expected No results")
	}
	if strings.Contains(body, "Search failed") {
		t.Error("an empty search is not a failure")
	}
}

func TestSearchPageFailure(t *testing.T) {
	_, repo, h := setupTestWebServer(t)
	repo.failing.Store(true)

	w := get(t, h, "/search?q=bridge")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Search failed") {
		t.Error("expected the failure notice")
	}
	if strings.Contains(body, "No results") {
		t.Error("a failed search must not look like an empty one")
	}
}

func TestHomeRedirectsQueries(t *testing.T) {
	_, _, h := setupTestWebServer(t)

	w := get(t, h, "/?q=time+value")
	if w.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/search?q=time%20value" {
		t.Errorf("Location = %q", loc)
	}

	w = get(t, h, "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Explaining one thing a week in a sketch") {
		t.Errorf("unexpected home page: %d", w.Code)
	}
}

func TestSketchPage(t *testing.T) {
	_, _, h := setupTestWebServer(t)

	w := get(t, h, "/bridge")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"<title>Bridge - Sketchplanations</title>", "Spans a gap.", "28 January 2019"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in the page", want)
		}
	}

	if w := get(t, h, "/missing"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown sketch, got %d", w.Code)
	}
}

func TestPreviewSetsCookieAndRedirects(t *testing.T) {
	_, repo, h := setupTestWebServer(t)

	token := repo.server.URL + "/previews/abc"
	w := get(t, h, "/preview?token="+url.QueryEscape(token)+"&documentId=X1")
	if w.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/bridge" {
		t.Errorf("Location = %q, want /bridge", loc)
	}
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == prismic.PreviewCookie && c.Value == token {
			found = true
		}
	}
	if !found {
		t.Error("expected the preview cookie")
	}

	if w := get(t, h, "/preview"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a token, got %d", w.Code)
	}
	if w := get(t, h, "/preview?token="+url.QueryEscape("https://evil.example.com/x")); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a foreign token, got %d", w.Code)
	}
}

func TestStaticAndOperationalRoutes(t *testing.T) {
	_, _, h := setupTestWebServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/static/search.js", http.StatusOK},
		{"/static/style.css", http.StatusOK},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/search?q=bridge", http.StatusOK},
		{"/api/search", http.StatusBadRequest},
		{"/api/stats", http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := get(t, h, tt.path); w.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.want, w.Code)
		}
	}
}

func TestResponsesAreCompressed(t *testing.T) {
	_, _, h := setupTestWebServer(t)

	req := httptest.NewRequest("GET", "/search?q=bridge", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected a gzip response, got %q", w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), `href="/bridge"`) {
		t.Error("expected the gallery in the decompressed page")
	}
}

func TestLiveSessionPicksUpSeed(t *testing.T) {
	s, repo, h := setupTestWebServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	page := get(t, h, "/search?q=bridge").Body.String()
	i := strings.Index(page, `data-token="`)
	if i < 0 {
		t.Fatal("no token in the page")
	}
	token := page[i+len(`data-token="`):]
	token = token[:strings.Index(token, `"`)]

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/search?" + url.Values{"token": {token}, "q": {"bridge"}, "width": {"800"}}.Encode()
	header := http.Header{"Origin": {ts.URL}}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != realtime.MsgState || msg.Phase != "results" || msg.Count != 1 {
		t.Fatalf("unexpected first message %+v", msg)
	}
	if !strings.Contains(msg.HTML, `href="/bridge"`) {
		t.Errorf("expected the rendered gallery, got %q", msg.HTML)
	}
	if repo.searches.Load() != 1 {
		t.Errorf("the seeded session must not search again, got %d searches", repo.searches.Load())
	}
	if s.live.Seeds().Len() != 0 {
		t.Error("the seed should have been taken")
	}
}

func TestReloadGalleryUpdatesGeometry(t *testing.T) {
	s, _, _ := setupTestWebServer(t)

	cfg, _ := config.GetDefaultConfig()
	cfg.Gallery.TargetRowHeight = 250
	s.reloadGallery(cfg)

	if got := s.Geometry().TargetRowHeight; got != 250 {
		t.Fatalf("TargetRowHeight = %v, want 250", got)
	}
}

func TestFormatSearchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rate limited", fmt.Errorf("%w: %w", search.ErrTransport, &prismic.APIError{StatusCode: 429}), "Too many searches"},
		{"server error", fmt.Errorf("%w: %w", search.ErrTransport, &prismic.APIError{StatusCode: 503}), "having trouble"},
		{"bad request", fmt.Errorf("%w: %w", search.ErrTransport, &prismic.APIError{StatusCode: 400}), "simpler query"},
		{"timeout", fmt.Errorf("%w: %w", search.ErrTransport, context.DeadlineExceeded), "too long"},
		{"transport", fmt.Errorf("%w: connection refused", search.ErrTransport), "could not reach"},
		{"locked", errors.New("database is locked"), "temporarily busy"},
		{"other", errors.New("boom"), "unexpected error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatSearchError(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("got %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
