package cmd

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sketchplanations/sketchweb/cmd/web/components"
	"github.com/sketchplanations/sketchweb/cmd/web/components/types"
	"github.com/sketchplanations/sketchweb/pkg/api"
	"github.com/sketchplanations/sketchweb/pkg/cache"
	"github.com/sketchplanations/sketchweb/pkg/config"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"github.com/sketchplanations/sketchweb/pkg/realtime"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/session"
	"github.com/sketchplanations/sketchweb/pkg/storage"
	"github.com/sketchplanations/sketchweb/pkg/version"
	"github.com/sketchplanations/sketchweb/pkg/warehouse"
	"github.com/urfave/cli/v3"
)

//go:embed web/static/*
var staticFS embed.FS

// WebCommand creates the web command with both API and UI
func WebCommand() *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Start the site: pages, live search and the JSON API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides web.port)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides web.host)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return startWebServer(ctx, c.String("config"), c.String("host"), c.Int("port"))
		},
	}
}

// documentSource looks single sketches up for detail pages.
type documentSource interface {
	GetByUID(ctx context.Context, docType, uid string) (*prismic.Document, error)
}

// WebServer holds the server configuration and dependencies
type WebServer struct {
	config    *config.Config
	geometry  atomic.Pointer[search.Params]
	client    *prismic.Client
	executor  *search.Executor
	documents documentSource
	live      *realtime.Handler
	apiServer *api.Server
	l         *log.Logger

	closers []func() error
}

// newWebServer wires the site for cfg. The mirror and the Redis cache are
// opened only when configured.
func newWebServer(ctx context.Context, cfg *config.Config) (*WebServer, error) {
	s := &WebServer{config: cfg, l: log.ForService("web")}
	s.setGeometry(cfg.Gallery)

	client, err := prismic.NewClient(prismic.Options{
		Endpoint:          cfg.Prismic.Endpoint,
		AccessToken:       cfg.Prismic.AccessToken,
		Timeout:           cfg.Prismic.Timeout.Duration,
		RequestsPerSecond: cfg.Prismic.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating prismic client: %w", err)
	}
	s.client = client

	var repo search.Repository = client
	s.documents = client
	source := "prismic"
	var stats api.StatsProvider

	if cfg.Mirror.Enabled {
		mirror, err := storage.OpenMirror(ctx, cfg.Mirror.Path)
		if err != nil {
			return nil, fmt.Errorf("opening mirror: %w", err)
		}
		s.closers = append(s.closers, mirror.Close)
		repo, s.documents, stats, source = mirror, mirror, mirror, "mirror"

		if cfg.Mirror.SyncInterval.Duration > 0 {
			wh := warehouse.NewWarehouse(warehouse.Config{
				DocumentType:     cfg.Prismic.DocumentType,
				PageSize:         cfg.Prismic.PageSize,
				SyncInterval:     cfg.Mirror.SyncInterval.Duration,
				OptimizeInterval: cfg.Mirror.OptimizeInterval.Duration,
			}, client, mirror)
			if err := wh.Start(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("starting mirror sync: %w", err)
			}
			s.closers = append(s.closers, func() error { wh.Stop(); return nil })
		}
	}

	opts := []search.Option{
		search.WithDocumentType(cfg.Prismic.DocumentType),
		search.WithPageSize(cfg.Prismic.PageSize),
		search.WithSource(source),
	}
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.New(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL.Duration)
		if err != nil {
			// Searching still works without the cache.
			s.l.Warnf("result cache disabled: %v", err)
		} else {
			s.closers = append(s.closers, rc.Close)
			opts = append(opts, search.WithCache(rc))
		}
	}
	s.executor = search.NewExecutor(repo, opts...)

	s.live = realtime.NewHandler(realtime.HandlerOptions{
		Searcher:   s.executor,
		Render:     components.RenderResults,
		Geometry:   s.Geometry,
		SearchPath: "/search",
	})
	s.apiServer = api.NewServer(s.executor, s.Geometry, stats)
	return s, nil
}

// Geometry returns the current gallery defaults.
func (s *WebServer) Geometry() search.Params {
	return *s.geometry.Load()
}

func (s *WebServer) setGeometry(g config.GalleryConfig) {
	s.geometry.Store(&search.Params{
		ContainerWidth:  g.ContainerWidth,
		TargetRowHeight: g.TargetRowHeight,
		Margin:          g.Margin,
	})
}

// reloadGallery applies a changed [gallery] section and tells open pages to
// lay their results out again.
func (s *WebServer) reloadGallery(cfg *config.Config) {
	if cfg.Gallery == s.currentGallery() {
		return
	}
	s.setGeometry(cfg.Gallery)
	n := s.live.Hub().Broadcast(realtime.Event{Type: realtime.EventGeometry, Params: s.Geometry()})
	s.l.Infof("gallery settings reloaded (row height %v, margin %v), %d live pages notified",
		cfg.Gallery.TargetRowHeight, cfg.Gallery.Margin, n)
}

func (s *WebServer) currentGallery() config.GalleryConfig {
	p := s.Geometry()
	return config.GalleryConfig{TargetRowHeight: p.TargetRowHeight, Margin: p.Margin, ContainerWidth: p.ContainerWidth}
}

// Handler returns the site's routes. The websocket endpoint bypasses
// compression; everything else is gzipped when the client accepts it.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	s.apiServer.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Web UI routes
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /preview", s.handlePreview)
	mux.HandleFunc("GET /{uid}", s.handleSketch)

	// Static assets
	mux.HandleFunc("GET /static/", s.handleStatic)

	root := http.NewServeMux()
	root.Handle("GET /ws/search", s.live)
	root.Handle("/", gzhttp.GzipHandler(api.CorsMiddleware(mux)))
	return root
}

// Close releases the mirror, the cache and the sync scheduler.
func (s *WebServer) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// startWebServer starts the web server with both API and UI
func startWebServer(ctx context.Context, configPath, host string, port int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if host != "" {
		cfg.Web.Host = host
	}
	if port != 0 {
		cfg.Web.Port = port
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webServer, err := newWebServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := webServer.Close(); err != nil {
			webServer.l.Warnf("failed to close resources: %v", err)
		}
	}()

	go func() {
		if err := config.Watch(ctx, configPath, webServer.reloadGallery); err != nil {
			webServer.l.Warnf("not watching %s: %v", configPath, err)
		}
	}()
	go webServer.live.Seeds().Run(ctx, 0)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           webServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l := webServer.l
	errCh := make(chan error, 1)
	go func() {
		l.Infof("Starting web server on http://%s", cfg.Address())
		l.Infof("Available endpoints:")
		l.Infof("  Web UI:")
		l.Infof("    GET / - Home page")
		l.Infof("    GET /search?q= - Search sketches")
		l.Infof("    GET /{uid} - A single sketch")
		l.Infof("    GET /preview - Preview unpublished content")
		l.Infof("    GET /ws/search - Live search session")
		l.Infof("  API:")
		l.Infof("    GET /api/search - Search with gallery layout")
		l.Infof("    POST /api/layout - Lay images out")
		l.Infof("    GET /api/stats - Mirror statistics")
		l.Infof("    GET /health - Health check")
		l.Infof("    GET /metrics - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	l.Infof("Shutting down web server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// Web UI Handlers

func (s *WebServer) pageData(title string, r *http.Request) types.PageData {
	p := s.Geometry()
	data := types.PageData{
		Title:    title,
		SiteName: s.config.Web.SiteName,
		Version:  version.APIVersion(),
		Gallery: types.Geometry{
			ContainerWidth:  p.ContainerWidth,
			TargetRowHeight: p.TargetRowHeight,
			Margin:          p.Margin,
		},
	}
	if _, err := r.Cookie(prismic.PreviewCookie); err == nil {
		data.Preview = true
	}
	return data
}

func (s *WebServer) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		s.l.Errorf("rendering %s: %v", r.URL.Path, err)
	}
}

// handleHome handles the home page
func (s *WebServer) handleHome(w http.ResponseWriter, r *http.Request) {
	// Check if there's a search query
	if q := r.URL.Query().Get("q"); q != "" {
		http.Redirect(w, r, session.QueryURL("/search", q), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, components.Home(s.pageData("", r)))
}

// handleSearch runs the search named by ?q= before rendering, so the page
// arrives with its results. The live session the page opens takes over
// from the seed stored here.
func (s *WebServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := search.ParseSearchParams(r.URL.Query(), s.Geometry())
	q := search.NormalizeQuery(params.Query)

	data := s.pageData("Search", r)
	data.Query = q
	data.Gallery = types.Geometry{
		ContainerWidth:  params.ContainerWidth,
		TargetRowHeight: params.TargetRowHeight,
		Margin:          params.Margin,
	}

	// Web allows empty queries (shows search page)
	if q != "" {
		seed := session.Seed{Query: q}
		results, err := s.executor.Search(r.Context(), params)
		if err != nil {
			// Handle search errors gracefully instead of returning HTTP 500
			data.Error = formatSearchError(err)
			data.HasSearched = true
			seed.Err = err
		} else {
			data.Images = results.Images
			data.Rows = results.Rows
			data.HasSearched = results.HasSearched
			seed.Images = results.Images
		}
		data.Token = s.live.Seeds().Put(seed)
	}

	s.render(w, r, http.StatusOK, components.Search(data))
}

// handleSketch renders one sketch by uid. With a preview cookie the
// document is read at the preview ref.
func (s *WebServer) handleSketch(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	data := s.pageData("", r)

	var (
		doc *prismic.Document
		err error
	)
	if cookie, cerr := r.Cookie(prismic.PreviewCookie); cerr == nil && cookie.Value != "" {
		doc, err = s.client.GetByUIDAt(r.Context(), s.executor.DocumentType(), uid, cookie.Value)
	} else {
		doc, err = s.documents.GetByUID(r.Context(), s.executor.DocumentType(), uid)
	}
	if errors.Is(err, prismic.ErrNotFound) {
		data.Title = "Not found"
		s.render(w, r, http.StatusNotFound, components.NotFound(data))
		return
	}
	if err != nil {
		s.l.Errorf("loading sketch %s: %v", uid, err)
		http.Error(w, "Failed to load sketch", http.StatusBadGateway)
		return
	}

	data.Sketch = sketchView(*doc)
	data.Title = data.Sketch.Title
	s.render(w, r, http.StatusOK, components.Detail(data))
}

// handlePreview starts a preview session: it remembers the preview ref and
// sends the editor to the previewed document.
func (s *WebServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing preview token", http.StatusBadRequest)
		return
	}

	target, err := s.client.PreviewSession(r.Context(), token, prismic.DefaultLinkResolver, "/")
	if err != nil {
		s.l.Warnf("preview session: %v", err)
		http.Error(w, "Invalid preview session", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     prismic.PreviewCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((30 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *WebServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	sub, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		http.Error(w, "Static files unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.StripPrefix("/static/", http.FileServerFS(sub)).ServeHTTP(w, r)
}

// sketchView extracts what the detail page shows from a document.
func sketchView(doc prismic.Document) *types.Sketch {
	v := &types.Sketch{
		UID:         doc.UID,
		Title:       doc.Text("title"),
		Description: doc.Text("body"),
	}
	if v.Description == "" {
		v.Description = doc.Text("description")
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", doc.FirstPublicationDate); err == nil {
		v.Published = t.Format("2 January 2006")
	}
	if images := gallery.Map([]prismic.Document{doc}); len(images) == 1 {
		v.Image = images[0]
	}
	return v
}

// formatSearchError converts search errors into user-friendly messages
func formatSearchError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *prismic.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The sketch library took too long to answer. Please try again."
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return "Too many searches right now. Please wait a moment and try again."
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 500:
		return "The sketch library is having trouble. Please try again in a moment."
	case errors.As(err, &apiErr):
		return "The sketch library could not run this search. Please try a simpler query."
	case errors.Is(err, search.ErrTransport):
		return components.SearchFailedMessage
	}

	// Handle local mirror errors
	errStr := err.Error()
	if strings.Contains(errStr, "database is locked") {
		return "Search is temporarily busy. Please try again in a moment."
	}

	// Fallback for unknown errors - show a generic message
	return "Search failed due to an unexpected error. Please try again."
}
