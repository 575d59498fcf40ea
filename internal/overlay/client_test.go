package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeController accepts one connection, performs the handshake, and
// answers requests via the respond func.
func fakeController(t *testing.T, respond func(f frame) *frame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()

		if err := wsjson.Write(ctx, conn, frame{Op: "hello"}); err != nil {
			return
		}
		var auth frame
		if err := wsjson.Read(ctx, conn, &auth); err != nil {
			return
		}
		if auth.Op != "auth" {
			t.Errorf("expected auth frame, got %q", auth.Op)
			return
		}
		if err := wsjson.Write(ctx, conn, frame{Op: "identified"}); err != nil {
			return
		}

		for {
			var req frame
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			if resp := respond(req); resp != nil {
				resp.ID = req.ID
				if err := wsjson.Write(ctx, conn, *resp); err != nil {
					return
				}
			}
		}
	}))
}

func startClient(t *testing.T, srv *httptest.Server) (*Client, context.CancelFunc) {
	t.Helper()
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Config{Address: addr}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c, cancel
}

func TestSetTextSourceRoundTrip(t *testing.T) {
	var gotType string
	var gotData map[string]string
	srv := fakeController(t, func(f frame) *frame {
		gotType = f.Type
		_ = json.Unmarshal(f.Data, &gotData)
		return &frame{Op: "response", Success: true}
	})
	defer srv.Close()

	c, cancel := startClient(t, srv)
	defer cancel()

	if err := c.SetTextSource(context.Background(), "NotifText", "hello"); err != nil {
		t.Fatalf("SetTextSource: %v", err)
	}
	if gotType != "SetTextSource" {
		t.Fatalf("unexpected request type %q", gotType)
	}
	if gotData["name"] != "NotifText" || gotData["text"] != "hello" {
		t.Fatalf("unexpected request data %v", gotData)
	}
}

func TestCallReportsControllerError(t *testing.T) {
	srv := fakeController(t, func(f frame) *frame {
		return &frame{Op: "response", Success: false, Error: "no such source"}
	})
	defer srv.Close()

	c, cancel := startClient(t, srv)
	defer cancel()

	err := c.PlayMedia(context.Background(), "gone", "x.webm")
	if err == nil || !strings.Contains(err.Error(), "no such source") {
		t.Fatalf("expected controller error, got %v", err)
	}
}

func TestCallTimesOutOnSilence(t *testing.T) {
	srv := fakeController(t, func(f frame) *frame { return nil })
	defer srv.Close()

	c, cancel := startClient(t, srv)
	defer cancel()

	err := c.call(context.Background(), "SetTextSource", map[string]string{}, 50*time.Millisecond)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
}

func TestCallFailsFastWhenDisconnected(t *testing.T) {
	c := New(Config{Address: "ws://127.0.0.1:1"}, nil)
	if err := c.SetTextSource(context.Background(), "a", "b"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
