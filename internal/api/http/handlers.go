package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/api/ws"
	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/markup"
	"github.com/GriffinCanCode/remotedom/internal/domain/script"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/tracing"
)

// DefaultMaxBodyBytes bounds script and HTML request bodies
const DefaultMaxBodyBytes int64 = 1 << 20

// Info identifies the running service
type Info struct {
	Service  string
	Version  string
	Instance string
	Started  time.Time
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry     *environment.Registry
	hub          *ws.Hub
	scripts      *script.Pool
	importer     *markup.Importer
	metrics      *monitoring.Metrics
	tracer       *tracing.Tracer
	logger       *zap.Logger
	info         Info
	maxBodyBytes int64
}

// Deps groups the collaborators of the handlers. Scripts, Metrics and
// Tracer may be nil.
type Deps struct {
	Registry     *environment.Registry
	Hub          *ws.Hub
	Scripts      *script.Pool
	Importer     *markup.Importer
	Metrics      *monitoring.Metrics
	Tracer       *tracing.Tracer
	Logger       *zap.Logger
	Info         Info
	MaxBodyBytes int64
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Importer == nil {
		deps.Importer = markup.NewImporter()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.Info.Started.IsZero() {
		deps.Info.Started = time.Now()
	}
	return &Handlers{
		registry:     deps.Registry,
		hub:          deps.Hub,
		scripts:      deps.Scripts,
		importer:     deps.Importer,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
		logger:       deps.Logger,
		info:         deps.Info,
		maxBodyBytes: deps.MaxBodyBytes,
	}
}

// Register mounts every surface route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	surfaces := r.Group("/surfaces")
	surfaces.GET("", h.ListSurfaces)
	surfaces.DELETE("", h.ResetSurfaces)
	surfaces.GET("/snapshot", h.Snapshot)
	surfaces.GET("/query", h.Query)
	surfaces.GET("/html", h.RenderHTML)
	surfaces.POST("/html", h.ImportHTML)
	surfaces.POST("/script", h.RunScript)
	surfaces.POST("/call", h.Call)
	surfaces.POST("/flush", h.Flush)
}

// Root returns service information
func (h *Handlers) Root(c *gin.Context) {
	body := gin.H{
		"service":  h.info.Service,
		"version":  h.info.Version,
		"instance": h.info.Instance,
		"uptime":   time.Since(h.info.Started).Round(time.Second).String(),
		"surfaces": h.registry.Len(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Health is the liveness check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"instance": h.info.Instance,
	})
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// requireURI reads the uri query parameter, answering 400 when it is missing
func requireURI(c *gin.Context) (string, bool) {
	uri := c.Query("uri")
	if uri == "" {
		respondError(c, http.StatusBadRequest, "uri is required")
		return "", false
	}
	return uri, true
}

// readBody reads at most limit bytes of the request body. Larger bodies
// are answered with 413.
func (h *Handlers) readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		respondError(c, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return data, true
}
