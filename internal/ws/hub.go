package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"timekeeper/backend/internal/middleware"
	"timekeeper/backend/internal/service"
)

const heartbeatAction = "ping"

var pongPayload = []byte(`{"action":"pong"}`)

// envelope is the inbound wire shape. Raw non-JSON text is accepted as a
// bare action tag for legacy clients.
type envelope struct {
	Action string `json:"action"`
	UserID string `json:"userId"`
}

// Hub is the connection lifecycle controller: it authenticates upgrade
// requests, registers channels, dispatches control messages to the timer
// service and broadcasts resulting snapshots to every channel of the
// affected users.
type Hub struct {
	registry *Registry
	timers   *service.TimerService
	auth     *service.AuthService
	upgrader websocket.Upgrader
}

func NewHub(registry *Registry, timers *service.TimerService, auth *service.AuthService) *Hub {
	return &Hub{
		registry: registry,
		timers:   timers,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS layer on the
			// REST surface; the upgrade itself is gated by the bearer
			// token below.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates and upgrades one connection, then serves it until
// the channel closes.
func (h *Hub) Handle(c *gin.Context) {
	token := middleware.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	identity, apiErr := h.auth.Verify(token)
	if apiErr != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own response.
		return
	}

	cl := newClient(identity.UserID, conn)
	conn.SetPongHandler(func(string) error {
		cl.markAlive()
		return nil
	})

	h.registry.Add(cl.userID, cl)
	go cl.writePump()

	snap, err := h.timers.Hydrate(context.Background(), cl.userID)
	if err != nil {
		log.Printf("hydrate timer for user %s: %v", cl.userID, err)
	} else {
		h.sendSnapshot(cl, snap)
	}

	h.readPump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer h.unregister(cl)

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(cl, raw)
	}
}

func (h *Hub) handleMessage(cl *client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Action == "" {
		// Legacy clients send the bare action tag as text.
		env = envelope{Action: string(raw)}
	}

	if env.Action == heartbeatAction {
		cl.Send(pongPayload)
		return
	}

	target := env.UserID
	if target == "" {
		target = cl.userID
	}

	msg, ok := service.ParseAction(env.Action)
	if !ok {
		snap, err := h.timers.SnapshotWithError(target, "Unrecognized action: "+env.Action)
		if err != nil {
			log.Printf("snapshot for user %s: %v", target, err)
			return
		}
		h.broadcast(cl.userID, target, snap)
		return
	}

	snap, err := h.timers.Apply(context.Background(), target, msg)
	if err != nil {
		log.Printf("apply %s for user %s: %v", env.Action, target, err)
		return
	}
	h.broadcast(cl.userID, target, snap)
}

// unregister handles a channel close. When the last open channel of a user
// goes away while the timer is running, a forced pause is synthesized so
// the timer never keeps running with zero observers.
func (h *Hub) unregister(cl *client) {
	if !h.registry.HasOtherOpen(cl.userID, cl) {
		_, err := h.timers.Apply(context.Background(), cl.userID, service.Message{Op: service.OpForcedPause})
		if err != nil && !errors.Is(err, service.ErrUnknownUser) {
			log.Printf("forced pause for user %s: %v", cl.userID, err)
		}
	}

	h.registry.Remove(cl.userID, cl)
	cl.close()
}

// RunLiveness sweeps all channels on the configured interval: a channel
// that failed to pong since the previous sweep is closed, every other one
// is provisionally marked dead and pinged again.
func (h *Hub) RunLiveness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.registry.Each(func(userID string, ch Channel) {
				cl, ok := ch.(*client)
				if !ok {
					return
				}
				if !cl.markSwept() {
					cl.close()
					return
				}
				if err := cl.ping(); err != nil {
					cl.close()
				}
			})
		}
	}
}

func (h *Hub) broadcast(authUserID, targetUserID string, snap interface{}) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("marshal snapshot: %v", err)
		return
	}

	h.registry.Broadcast(authUserID, payload)
	if targetUserID != authUserID {
		h.registry.Broadcast(targetUserID, payload)
	}
}

func (h *Hub) sendSnapshot(cl *client, snap interface{}) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("marshal snapshot: %v", err)
		return
	}
	cl.Send(payload)
}
