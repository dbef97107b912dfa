package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lattice-dev/lattice/pkg/store"
)

func newLiveServer(t *testing.T, s *store.Store, opts ...HandlerOption) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(s)
	t.Cleanup(hub.Close)

	r := chi.NewRouter()
	Mount(r, "/live", hub, opts...)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	return decodeFrame(t, data)
}

func TestHandlerStreamsInitThenChanges(t *testing.T) {
	_, s := newHubStore(t)
	srv, _ := newLiveServer(t, s)

	conn := dialWS(t, wsURL(t, srv.URL, "/live"), nil)

	init := readFrame(t, conn)
	if init.Type != FrameInit {
		t.Fatalf("expected init frame first, got %q", init.Type)
	}
	if string(init.Values["count"]) != "0" {
		t.Errorf("expected count 0 in init, got %s", init.Values["count"])
	}

	// The init frame has arrived, so registration is complete and this
	// write must reach the socket
	store.Set(s, "count", 41)

	change := readFrame(t, conn)
	if change.Type != FrameChange || change.Key != "count" {
		t.Fatalf("expected change frame for count, got %+v", change)
	}
	if string(change.Value) != "41" {
		t.Errorf("expected value 41, got %s", change.Value)
	}
}

func TestHandlerFansOutToMultipleClients(t *testing.T) {
	_, s := newHubStore(t)
	srv, hub := newLiveServer(t, s)

	first := dialWS(t, wsURL(t, srv.URL, "/live"), nil)
	second := dialWS(t, wsURL(t, srv.URL, "/live"), nil)
	readFrame(t, first)
	readFrame(t, second)

	if hub.ConnCount() != 2 {
		t.Fatalf("expected 2 connections, got %d", hub.ConnCount())
	}

	store.Set(s, "name", "broadcast")

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		if frame.Key != "name" || string(frame.Value) != `"broadcast"` {
			t.Errorf("expected name change on every client, got %+v", frame)
		}
	}
}

func TestHandlerClientWrites(t *testing.T) {
	_, s := newHubStore(t)
	srv, _ := newLiveServer(t, s, WithClientWrites())

	conn := dialWS(t, wsURL(t, srv.URL, "/live"), nil)
	readFrame(t, conn) // init

	// Noise first: malformed JSON and an unexpected type are ignored
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteJSON(Frame{Type: FrameChange, Key: "count"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := conn.WriteJSON(Frame{Type: FrameSet, Key: "count", Value: []byte("7")}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The write echoes back as a change frame once it lands in the store
	echo := readFrame(t, conn)
	if echo.Type != FrameChange || echo.Key != "count" || string(echo.Value) != "7" {
		t.Fatalf("expected echoed change for count=7, got %+v", echo)
	}
	if v, _ := store.Value[int](s, "count"); v != 7 {
		t.Errorf("expected store to hold 7, got %d", v)
	}
}

func TestHandlerClientWritesDisabledByDefault(t *testing.T) {
	_, s := newHubStore(t)
	srv, _ := newLiveServer(t, s)

	conn := dialWS(t, wsURL(t, srv.URL, "/live"), nil)
	readFrame(t, conn) // init

	if err := conn.WriteJSON(Frame{Type: FrameSet, Key: "count", Value: []byte("7")}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Give the read pump a moment to (not) process it
	time.Sleep(100 * time.Millisecond)
	if v, _ := store.Value[int](s, "count"); v != 0 {
		t.Errorf("expected read-only stream to ignore the write, got %d", v)
	}
}

func TestHandlerRejectsCrossOrigin(t *testing.T) {
	_, s := newHubStore(t)
	srv, _ := newLiveServer(t, s)

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(t, srv.URL, "/live"), header)
	if err == nil {
		t.Fatal("expected cross-origin dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	// Same-origin is allowed
	header = http.Header{"Origin": []string{srv.URL}}
	conn := dialWS(t, wsURL(t, srv.URL, "/live"), header)
	if frame := readFrame(t, conn); frame.Type != FrameInit {
		t.Errorf("expected init frame on same-origin dial, got %q", frame.Type)
	}
}

func TestHandlerCustomOriginCheck(t *testing.T) {
	_, s := newHubStore(t)
	srv, _ := newLiveServer(t, s, WithCheckOrigin(func(r *http.Request) bool { return true }))

	header := http.Header{"Origin": []string{"http://anywhere.example.com"}}
	conn := dialWS(t, wsURL(t, srv.URL, "/live"), header)
	if frame := readFrame(t, conn); frame.Type != FrameInit {
		t.Errorf("expected permissive check to admit the dial, got %q", frame.Type)
	}
}

func TestHandlerHubCloseDisconnectsClients(t *testing.T) {
	_, s := newHubStore(t)
	srv, hub := newLiveServer(t, s)

	conn := dialWS(t, wsURL(t, srv.URL, "/live"), nil)
	readFrame(t, conn) // init

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestSameOriginCheck(t *testing.T) {
	mk := func(host, origin string) *http.Request {
		r := httptest.NewRequest("GET", "http://"+host+"/live", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	cases := []struct {
		name   string
		req    *http.Request
		expect bool
	}{
		{"no origin", mk("app.example.com", ""), true},
		{"matching origin", mk("app.example.com", "http://app.example.com"), true},
		{"matching with port", mk("app.example.com:8080", "http://app.example.com:8080"), true},
		{"mismatched host", mk("app.example.com", "http://evil.example.com"), false},
		{"mismatched port", mk("app.example.com:8080", "http://app.example.com:9090"), false},
		{"unparseable origin", mk("app.example.com", "://bad"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameOriginCheck(tc.req); got != tc.expect {
				t.Errorf("expected %v, got %v", tc.expect, got)
			}
		})
	}
}
