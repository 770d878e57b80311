package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rescueline/internal/domain"
)

func wsURL(srv *testServer, token string) string {
	return strings.Replace(srv.URL, "http://", "ws://", 1) + "/v0/watch?token=" + token
}

func TestWatchSocketPushesActiveRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token := responderToken(t, srv)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"symptoms": "drowning",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame watchFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "active" || frame.Request == nil {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Request.Status != domain.StatusDispatched {
		t.Fatalf("status = %s", frame.Request.Status)
	}
}

func TestWatchSocketRejectsBadToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "bogus"), nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}
}
