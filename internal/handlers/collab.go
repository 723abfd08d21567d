package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/middleware"
	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/huangang/codecollab/backend/pkg/response"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Envelope is the frame exchanged on a collaboration connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// incomingMessage is the data of a project-message sent by a client. Any
// sender it carries is ignored in favour of the identity bound at join time.
type incomingMessage struct {
	Message string `json:"message"`
}

type CollabHandler struct {
	auth            *services.AuthService
	projects        *services.ProjectService
	hub             *services.Hub
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	log             zerolog.Logger
}

func NewCollabHandler(auth *services.AuthService, projects *services.ProjectService, hub *services.Hub, cfg *config.RealtimeConfig) *CollabHandler {
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	allowed := cfg.AllowedOrigins
	return &CollabHandler{
		auth:     auth,
		projects: projects,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowed, origin)
			},
		},
		maxMessageBytes: maxBytes,
		log:             logger.Component("collab"),
	}
}

// handshakeToken reads the token from the query, the Authorization header or
// the session cookie, in that order.
func handshakeToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); header != "" {
		if token := middleware.BearerToken(header); token != "" {
			return token
		}
		return strings.TrimSpace(header)
	}
	if token, err := c.Cookie(middleware.TokenCookie); err == nil {
		return token
	}
	return ""
}

// ServeWS validates the handshake and then upgrades the connection into the
// project's room. A rejected handshake gets a plain HTTP error and leaves no
// trace in the hub.
// GET /ws?projectId=...&token=...
func (h *CollabHandler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	projectID := c.Query("projectId")
	if !models.IsValidID(projectID) {
		response.Error(c, response.NewBadRequest("invalid project id"))
		return
	}

	id, err := h.auth.Authenticate(ctx, handshakeToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.projects.CheckAccess(ctx, id, projectID); err != nil {
		response.Error(c, err)
		return
	}
	sender, err := h.projects.Sender(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		h.log.Warn().Err(err).Str("project_id", projectID).Msg("websocket upgrade failed")
		return
	}

	client, ok := h.hub.Join(projectID, id, sender)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(conn, client)
	h.readPump(c, conn, client)
}

func (h *CollabHandler) readPump(c *gin.Context, conn *websocket.Conn, client *services.Client) {
	defer func() {
		h.hub.Leave(client)
		conn.Close()
	}()

	conn.SetReadLimit(h.maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Str("client", client.ID).Msg("connection closed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Debug().Err(err).Str("client", client.ID).Msg("malformed frame")
			continue
		}
		if env.Event != services.EventProjectMessage {
			continue
		}

		var in incomingMessage
		if err := json.Unmarshal(env.Data, &in); err != nil {
			h.log.Debug().Err(err).Str("client", client.ID).Msg("malformed project-message")
			continue
		}
		h.hub.Relay(c.Request.Context(), client, in.Message)
	}
}

func (h *CollabHandler) writePump(conn *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frame, err := encodeEnvelope(msg)
			if err != nil {
				h.log.Error().Err(err).Str("client", client.ID).Msg("failed to encode message")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug().Err(err).Str("client", client.ID).Msg("write failed")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeEnvelope(msg services.ChatMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: services.EventProjectMessage, Data: data})
}
