package server

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"rescueline/internal/domain"
	"rescueline/internal/poll"
	"rescueline/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// watchFrame is one push to a responder dashboard. Request is nil when the
// active slot was cleared.
type watchFrame struct {
	Type    string           `json:"type" enum:"active,cleared"`
	Request *RequestResponse `json:"request,omitempty"`
}

// registerWatch serves a websocket that pushes active-request changes at the
// poll interval. The socket authenticates at upgrade time via the bearer
// header or a token query parameter, since browsers cannot set websocket
// headers.
func registerWatch(router chi.Router, basePath string, cfg Config) {
	watchPath := path.Join(basePath, "watch")
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	router.Get(watchPath, func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			if t, ok := bearerToken(r.Header.Get("Authorization")); ok {
				token = t
			}
		}
		if _, err := authenticateJWT(token, cfg.Auth.JWTSecret); err != nil {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "responder authentication required", nil))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Writes push state changes; reads only detect the peer going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ctx := r.Context()
		var view *domain.RescueRequest
		push := func() error {
			remote, err := store.LoadRequest(ctx, cfg.Store)
			if err != nil {
				return err
			}
			next, changed := poll.Responder(view, remote)
			view = next
			if !changed {
				return nil
			}
			frame := watchFrame{Type: "cleared"}
			if view != nil {
				resp := requestResponse(*view)
				frame = watchFrame{Type: "active", Request: &resp}
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			return conn.WriteJSON(frame)
		}

		if err := push(); err != nil {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := push(); err != nil {
					return
				}
			}
		}
	})
}
