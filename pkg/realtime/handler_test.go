package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/session"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	images  []gallery.Image
	err     error
}

func (f *fakeSearcher) Images(_ context.Context, q string) ([]gallery.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.images, f.err
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

var sketches = []gallery.Image{
	{UID: "bridge", Src: "https://x/bridge.png", Width: 800, Height: 600, Alt: "Bridge"},
	{UID: "arch", Src: "https://x/arch.png", Width: 600, Height: 400, Alt: "Arch"},
}

func renderCount(_ context.Context, st session.State, p search.Params) (string, error) {
	return fmt.Sprintf("%d@%g", len(st.Results), p.ContainerWidth), nil
}

func newTestServer(t *testing.T, searcher session.Searcher) (*Handler, *httptest.Server) {
	t.Helper()
	h := NewHandler(HandlerOptions{Searcher: searcher, Render: renderCount})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return h, ts
}

func wsDial(t *testing.T, ts *httptest.Server, rawQuery string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.RawQuery = rawQuery

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one or the timeout expires.
func readUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatal("expected message not received")
	return ServerMessage{}
}

func isState(phase string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MsgState && m.Phase == phase }
}

func TestSeededConnectionDoesNotSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	h, ts := newTestServer(t, searcher)
	token := h.Seeds().Put(session.Seed{Query: "bridge", Images: sketches})

	conn := wsDial(t, ts, "token="+token+"&q=bridge&width=1200")
	msg := readUntil(t, conn, 3*time.Second, isState("results"))

	if !msg.HasSearched || msg.Query != "bridge" || msg.Count != 2 || msg.HTML != "2@1200" {
		t.Fatalf("unexpected initial state %+v", msg)
	}
	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("seeded session searched: %v", calls)
	}
}

func TestUnknownTokenSearchesAgain(t *testing.T) {
	searcher := &fakeSearcher{images: sketches}
	_, ts := newTestServer(t, searcher)

	conn := wsDial(t, ts, "token=expired&q=bridge")
	msg := readUntil(t, conn, 3*time.Second, isState("results"))
	if msg.Count != 2 {
		t.Fatalf("unexpected state %+v", msg)
	}
	if calls := searcher.calls(); len(calls) != 1 || calls[0] != "bridge" {
		t.Fatalf("unexpected searches %v", calls)
	}
}

func TestSubmitReplacesURL(t *testing.T) {
	searcher := &fakeSearcher{images: sketches}
	_, ts := newTestServer(t, searcher)

	conn := wsDial(t, ts, "")
	readUntil(t, conn, 3*time.Second, isState("idle"))

	if err := conn.WriteJSON(ClientMessage{Type: MsgSubmit, Query: "golden gate"}); err != nil {
		t.Fatal(err)
	}
	replace := readUntil(t, conn, 3*time.Second, func(m ServerMessage) bool { return m.Type == MsgReplaceURL })
	if replace.URL != "/search?q=golden%20gate" {
		t.Fatalf("unexpected url %q", replace.URL)
	}
	msg := readUntil(t, conn, 3*time.Second, isState("results"))
	if msg.Query != "golden gate" || msg.IsSearching || !msg.HasSearched {
		t.Fatalf("unexpected state %+v", msg)
	}
}

func TestBlankSubmitIsIgnored(t *testing.T) {
	searcher := &fakeSearcher{images: sketches}
	_, ts := newTestServer(t, searcher)

	conn := wsDial(t, ts, "")
	readUntil(t, conn, 3*time.Second, isState("idle"))

	conn.WriteJSON(ClientMessage{Type: MsgSubmit, Query: "   "})
	conn.WriteJSON(ClientMessage{Type: MsgEdit, Query: "br"})
	msg := readUntil(t, conn, 3*time.Second, func(m ServerMessage) bool { return m.Type == MsgState })
	if msg.Input != "br" || msg.HasSearched || msg.IsSearching {
		t.Fatalf("unexpected state %+v", msg)
	}
	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("blank submit searched: %v", calls)
	}
}

func TestFailedSearch(t *testing.T) {
	searcher := &fakeSearcher{err: fmt.Errorf("%w: connection refused", search.ErrTransport)}
	_, ts := newTestServer(t, searcher)

	conn := wsDial(t, ts, "q=bridge")
	msg := readUntil(t, conn, 3*time.Second, isState("failed"))
	if msg.Error != "Search failed" || !msg.HasSearched {
		t.Fatalf("unexpected state %+v", msg)
	}
}

func TestLayoutMessageRerenders(t *testing.T) {
	h, ts := newTestServer(t, &fakeSearcher{})
	token := h.Seeds().Put(session.Seed{Query: "bridge", Images: sketches})

	conn := wsDial(t, ts, "token="+token+"&width=1000")
	readUntil(t, conn, 3*time.Second, isState("results"))

	conn.WriteJSON(ClientMessage{Type: MsgLayout, Width: 640})
	msg := readUntil(t, conn, 3*time.Second, isState("results"))
	if msg.HTML != "2@640" {
		t.Fatalf("expected a render at the new width, got %q", msg.HTML)
	}
}

func TestUnusableWidthsAreIgnored(t *testing.T) {
	for _, width := range []string{"Inf", "NaN", "1e308", "-5"} {
		t.Run(width, func(t *testing.T) {
			h, ts := newTestServer(t, &fakeSearcher{})
			token := h.Seeds().Put(session.Seed{Query: "bridge", Images: sketches})

			conn := wsDial(t, ts, "token="+token+"&width="+width)
			msg := readUntil(t, conn, 3*time.Second, isState("results"))
			if msg.HTML != "2@1000" {
				t.Fatalf("expected a render at the default width, got %q", msg.HTML)
			}

			conn.WriteJSON(ClientMessage{Type: MsgLayout, Width: 1e308})
			conn.WriteJSON(ClientMessage{Type: MsgLayout, Width: 640})
			msg = readUntil(t, conn, 3*time.Second, isState("results"))
			if msg.HTML != "2@640" {
				t.Fatalf("expected the oversized width to be skipped, got %q", msg.HTML)
			}
		})
	}
}

func TestGeometryBroadcast(t *testing.T) {
	h, ts := newTestServer(t, &fakeSearcher{})
	token := h.Seeds().Put(session.Seed{Query: "bridge", Images: sketches})

	conn := wsDial(t, ts, "token="+token+"&width=900")
	readUntil(t, conn, 3*time.Second, isState("results"))

	deadline := time.Now().Add(2 * time.Second)
	for h.Hub().Size() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := h.Hub().Broadcast(Event{Type: EventGeometry, Params: search.Params{ContainerWidth: 1, TargetRowHeight: 300, Margin: 4}}); n != 1 {
		t.Fatalf("broadcast reached %d listeners", n)
	}
	msg := readUntil(t, conn, 3*time.Second, isState("results"))
	if msg.HTML != "2@900" {
		t.Fatalf("page width should survive a geometry change, got %q", msg.HTML)
	}
}

func TestStateMessageRenderError(t *testing.T) {
	h := NewHandler(HandlerOptions{Render: func(context.Context, session.State, search.Params) (string, error) {
		return "", errors.New("template exploded")
	}})
	msg := h.stateMessage(context.Background(), session.Initial(nil), search.DefaultParams())
	if msg.Type != MsgState || msg.Phase != "idle" || msg.HTML != "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}
