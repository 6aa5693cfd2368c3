package realtime

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sketchplanations/sketchweb/pkg/log"
	"github.com/sketchplanations/sketchweb/pkg/metrics"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Client message types.
const (
	MsgSubmit = "submit"
	MsgEdit   = "edit"
	MsgLayout = "layout"
)

// Server message types.
const (
	MsgState      = "state"
	MsgReplaceURL = "replace_url"
)

// ClientMessage is sent by the page.
type ClientMessage struct {
	Type  string  `json:"type"`
	Query string  `json:"query,omitempty"`
	Width float64 `json:"width,omitempty"`
}

// ServerMessage is sent to the page: a state snapshot or a URL to switch to.
type ServerMessage struct {
	Type        string `json:"type"`
	Phase       string `json:"phase,omitempty"`
	Query       string `json:"query,omitempty"`
	Input       string `json:"input,omitempty"`
	IsSearching bool   `json:"is_searching"`
	HasSearched bool   `json:"has_searched"`
	Error       string `json:"error,omitempty"`
	Count       int    `json:"count"`
	HTML        string `json:"html,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Renderer renders the results area of the search page for a state.
type Renderer func(ctx context.Context, st session.State, p search.Params) (string, error)

// Handler upgrades requests to live search sessions.
//
// The page connects with ?token= (the seed it was rendered with), ?q= and
// ?width=. When the token is unknown or expired and q is set, the session
// searches q again.
type Handler struct {
	searcher session.Searcher
	seeds    *SeedStore
	hub      *Hub
	render   Renderer
	geometry func() search.Params
	path     string
	upgrader websocket.Upgrader
	l        *log.Logger
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Searcher session.Searcher
	Seeds    *SeedStore
	Hub      *Hub
	Render   Renderer
	// Geometry returns the current default gallery geometry.
	Geometry func() search.Params
	// SearchPath is the page path URL replacements are built for.
	SearchPath string
	// CheckOrigin overrides the same-origin check of the upgrader.
	CheckOrigin func(r *http.Request) bool
}

// NewHandler builds a Handler.
func NewHandler(opts HandlerOptions) *Handler {
	h := &Handler{
		searcher: opts.Searcher,
		seeds:    opts.Seeds,
		hub:      opts.Hub,
		render:   opts.Render,
		geometry: opts.Geometry,
		path:     opts.SearchPath,
		l:        log.ForService("realtime"),
	}
	if h.seeds == nil {
		h.seeds = NewSeedStore(0, 0)
	}
	if h.hub == nil {
		h.hub = NewHub(0)
	}
	if h.geometry == nil {
		h.geometry = search.DefaultParams
	}
	if h.path == "" {
		h.path = "/search"
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     opts.CheckOrigin,
	}
	return h
}

// Seeds returns the store pages put their seeds in.
func (h *Handler) Seeds() *SeedStore {
	return h.seeds
}

// Hub returns the hub connections listen on.
func (h *Handler) Hub() *Hub {
	return h.hub
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warnf("upgrade failed: %v", err)
		return
	}

	params := h.geometry()
	if v, err := strconv.ParseFloat(r.URL.Query().Get("width"), 64); err == nil && search.ValidWidth(v) {
		params.ContainerWidth = v
	}

	c := &conn{
		id:      uuid.NewString(),
		h:       h,
		ws:      ws,
		send:    make(chan ServerMessage, sendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		params:  params,
	}
	c.serve(r.Context(), r.URL.Query().Get("token"), r.URL.Query().Get("q"))
}

type conn struct {
	id   string
	h    *Handler
	ws   *websocket.Conn
	send chan ServerMessage
	done chan struct{}
	// stopped is closed when the writer gives up.
	stopped chan struct{}
	sess    *session.Session
	ctx     context.Context

	mu     sync.Mutex
	params search.Params
}

func (c *conn) serve(ctx context.Context, token, q string) {
	l := c.h.l
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	seed, seeded := c.h.seeds.Take(token)
	c.sess = session.New(ctx, c.h.searcher, seed, c.replaceURL, c.publish)

	hubID, events := c.h.hub.Register()
	metrics.LiveSessions.Inc()
	l.Debugf("session %s connected (seeded=%v)", c.id, seeded)

	go c.writePump()
	go c.watch(events)

	c.sess.Refresh()
	if !seeded && q != "" {
		c.sess.Submit(q)
	}

	c.readPump()

	close(c.done)
	cancel()
	c.sess.Close()
	c.h.hub.Unregister(hubID)
	<-c.stopped
	metrics.LiveSessions.Dec()
	l.Debugf("session %s closed", c.id)
}

func (c *conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.l.Debugf("session %s read: %v", c.id, err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *conn) handle(msg ClientMessage) {
	switch msg.Type {
	case MsgSubmit:
		c.sess.Submit(msg.Query)
	case MsgEdit:
		c.sess.Edit(msg.Query)
	case MsgLayout:
		if !search.ValidWidth(msg.Width) {
			return
		}
		c.mu.Lock()
		c.params.ContainerWidth = msg.Width
		c.mu.Unlock()
		c.sess.Refresh()
	default:
		c.h.l.Debugf("session %s: unknown message type %q", c.id, msg.Type)
	}
}

func (c *conn) watch(events <-chan Event) {
	for ev := range events {
		if ev.Type != EventGeometry {
			continue
		}
		c.mu.Lock()
		width := c.params.ContainerWidth
		c.params = ev.Params
		c.params.ContainerWidth = width
		c.mu.Unlock()
		c.sess.Refresh()
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.stopped)
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.ws.WriteJSON(msg); err != nil {
				c.h.l.Debugf("session %s write: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.ws.WriteMessage(websocket.CloseMessage, closing) //nolint:errcheck
			return
		}
	}
}

func (c *conn) enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	case <-c.stopped:
	}
}

func (c *conn) replaceURL(q string) {
	c.enqueue(ServerMessage{Type: MsgReplaceURL, URL: session.QueryURL(c.h.path, q)})
}

func (c *conn) publish(st session.State) {
	c.mu.Lock()
	p := c.params
	c.mu.Unlock()
	p.Query = st.Query
	c.enqueue(c.h.stateMessage(c.ctx, st, p))
}

func (h *Handler) stateMessage(ctx context.Context, st session.State, p search.Params) ServerMessage {
	msg := ServerMessage{
		Type:        MsgState,
		Phase:       st.Phase().String(),
		Query:       st.Query,
		Input:       st.Input,
		IsSearching: st.IsSearching,
		HasSearched: st.HasSearched,
		Count:       len(st.Results),
	}
	if st.Err != nil {
		msg.Error = "Search failed"
	}
	if h.render != nil {
		html, err := h.render(ctx, st, p)
		if err != nil {
			h.l.Errorf("rendering results for %q: %v", st.Query, err)
		} else {
			msg.HTML = html
		}
	}
	return msg
}
