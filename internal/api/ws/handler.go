package ws

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// Surfaces resolves URIs to surfaces
type Surfaces interface {
	Get(uri string) *surface.Surface
	Lookup(uri string) (*surface.Surface, bool)
}

// Handler upgrades HTTP requests into surface streams
type Handler struct {
	hub      *Hub
	surfaces Surfaces
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, surfaces Surfaces, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		surfaces: surfaces,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin policy is enforced by the CORS middleware
			},
		},
	}
}

// HandleConnection serves GET /ws?uri=...[&epoch=E&since=N].
//
// A client that presents the current epoch and a position still covered
// by the history gets the missed messages replayed. Any other client gets
// a snapshot frame followed by live messages.
func (h *Handler) HandleConnection(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, uri)
	log := h.logger.With(zap.String("uri", uri), zap.String("client", client.id))

	if !h.tryResume(client, c.Query("epoch"), c.Query("since")) {
		attached := false
		h.surfaces.Get(uri).Sync(func(snap *tree.Snapshot) {
			attached = h.hub.attach(client, snap)
		})
		if !attached {
			conn.Close()
			return
		}
		log.Debug("Client synced")
	} else {
		log.Debug("Client resumed")
	}

	go client.writePump()
	client.readPump(func() {
		if s, ok := h.surfaces.Lookup(uri); ok {
			s.Flush()
		}
	})
	log.Debug("Client disconnected")
}

func (h *Handler) tryResume(client *Client, epochParam, sinceParam string) bool {
	if epochParam == "" || sinceParam == "" {
		return false
	}
	epoch, err := strconv.ParseUint(epochParam, 10, 64)
	if err != nil {
		return false
	}
	since, err := strconv.ParseUint(sinceParam, 10, 64)
	if err != nil {
		return false
	}
	return h.hub.resume(client, epoch, since)
}
