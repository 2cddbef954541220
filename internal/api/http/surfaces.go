package http

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
	"github.com/GriffinCanCode/remotedom/internal/domain/markup"
	"github.com/GriffinCanCode/remotedom/internal/domain/script"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/tracing"
)

type surfaceSummary struct {
	URI     string `json:"uri"`
	Nodes   int    `json:"nodes"`
	Pending int    `json:"pending"`
}

// ListSurfaces lists registered surfaces with registry and stream stats
func (h *Handlers) ListSurfaces(c *gin.Context) {
	uris := h.registry.URIs()
	list := make([]surfaceSummary, 0, len(uris))
	for _, uri := range uris {
		s, ok := h.registry.Lookup(uri)
		if !ok {
			continue
		}
		list = append(list, surfaceSummary{URI: uri, Nodes: s.Len(), Pending: s.Pending()})
	}

	body := gin.H{
		"surfaces": list,
		"stats":    h.registry.Stats(),
	}
	if h.hub != nil {
		body["stream"] = h.hub.Stats()
	}
	if h.scripts != nil {
		body["scripts"] = h.scripts.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// Snapshot serialises a surface without touching its batch
func (h *Handlers) Snapshot(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	s, ok := h.registry.Lookup(uri)
	if !ok {
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uri":  uri,
		"root": s.Snapshot(),
	})
}

// RenderHTML renders the children of a surface root as HTML
func (h *Handlers) RenderHTML(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	s, ok := h.registry.Lookup(uri)
	if !ok {
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}
	out, err := markup.RenderChildren(s.Snapshot())
	if err != nil {
		h.logger.Error("Failed to render surface", zap.String("uri", uri), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to render surface")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out))
}

// Query finds nodes of a surface by CSS selector or XPath expression
func (h *Handlers) Query(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	selector, xpath := c.Query("selector"), c.Query("xpath")
	if (selector == "") == (xpath == "") {
		respondError(c, http.StatusBadRequest, "exactly one of selector or xpath is required")
		return
	}
	s, ok := h.registry.Lookup(uri)
	if !ok {
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}

	var (
		matches []markup.Match
		err     error
	)
	if selector != "" {
		matches, err = markup.QuerySelector(s.Snapshot(), selector)
	} else {
		matches, err = markup.QueryXPath(s.Snapshot(), xpath)
	}
	if err != nil {
		if errors.Is(err, markup.ErrInvalidQuery) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Surface query failed", zap.String("uri", uri), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uri":     uri,
		"matches": matches,
		"count":   len(matches),
	})
}

// ImportHTML sanitises the body and appends it under parent, the root by
// default. Bodies that are not UTF-8 are transcoded first.
func (h *Handlers) ImportHTML(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	mtype := mimetype.Detect(body)
	if !mtype.Is("text/html") && !mtype.Is("text/plain") {
		respondError(c, http.StatusBadRequest, "expected an HTML fragment, got "+mtype.String())
		return
	}

	parent := tree.NodeID(c.DefaultQuery("parent", string(tree.RootID)))
	s := h.registry.Get(uri)
	ids, err := h.importer.ImportBytes(s, parent, body)
	switch {
	case err == nil:
	case errors.Is(err, markup.ErrCharset):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, tree.ErrNodeNotFound):
		respondError(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, markup.ErrEmptyFragment),
		errors.Is(err, tree.ErrNotElement),
		errors.Is(err, tree.ErrHierarchy):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		h.logger.Error("HTML import failed", zap.String("uri", uri), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "import failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uri":     uri,
		"parent":  parent,
		"nodes":   ids,
		"pending": s.Pending(),
	})
}

type scriptRequest struct {
	Source string `json:"source"`
}

// RunScript executes JavaScript against a surface, then flushes whatever
// the script queued. The body is either raw source or {"source": "..."}.
func (h *Handlers) RunScript(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	if h.scripts == nil {
		respondError(c, http.StatusInternalServerError, "script runtime unavailable")
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	src := string(body)
	if c.ContentType() == gin.MIMEJSON {
		var req scriptRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
		src = req.Source
	}
	if src == "" {
		respondError(c, http.StatusBadRequest, "script source is required")
		return
	}

	s := h.registry.Get(uri)
	var timer *monitoring.Timer
	if h.metrics != nil {
		timer = monitoring.NewTimer(h.metrics)
	}
	ctx := c.Request.Context()
	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "script.execute")
		span.SetTag("uri", uri)
	}

	result, err := h.scripts.Execute(ctx, src, s)
	s.Flush()

	status := "ok"
	defer func() {
		if timer != nil {
			timer.Stop(status)
		}
		if span != nil {
			span.SetTag("status", status)
			span.SetError(err)
			h.tracer.Submit(span)
		}
	}()

	switch {
	case err == nil:
	case errors.Is(err, script.ErrTimeout), errors.Is(err, script.ErrPoolClosed):
		status = "unavailable"
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	case errors.Is(err, script.ErrInvariant):
		status = "invariant"
		h.logger.Error("Script broke a tree invariant", zap.String("uri", uri), zap.Error(err))
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	default:
		status = "error"
		resp := gin.H{"error": err.Error()}
		if result != nil {
			resp["console"] = result.Console
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"value":       codec.JSONValue(result.Value),
		"console":     result.Console,
		"calls":       result.Calls,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

type callRequest struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// Call flushes the surface and sends a call message
func (h *Handlers) Call(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	var req callRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Method == "" {
		respondError(c, http.StatusBadRequest, "method is required")
		return
	}

	s, ok := h.registry.Lookup(uri)
	if !ok {
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": s.Call(req.Method, req.Args...)})
}

// Flush sends the pending batch of a surface now
func (h *Handlers) Flush(c *gin.Context) {
	uri, ok := requireURI(c)
	if !ok {
		return
	}
	s, ok := h.registry.Lookup(uri)
	if !ok {
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}
	pending := s.Pending()
	s.Flush()
	c.JSON(http.StatusOK, gin.H{"flushed": pending})
}

// ResetSurfaces resets one surface, or all of them when uri is absent.
// Clients of registered surfaces are told through the registry's reset
// notifier; stream channels without a surface are reset here.
func (h *Handlers) ResetSurfaces(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		uris := h.registry.ResetAll()
		if h.hub != nil {
			h.hub.ResetAll()
		}
		h.logger.Info("All surfaces reset", zap.Int("count", len(uris)))
		c.JSON(http.StatusOK, gin.H{"reset": uris})
		return
	}

	if !h.registry.Reset(uri) {
		if h.hub != nil {
			h.hub.Reset(uri)
		}
		respondError(c, http.StatusNotFound, "surface not found")
		return
	}
	h.logger.Info("Surface reset", zap.String("uri", uri))
	c.JSON(http.StatusOK, gin.H{"reset": []string{uri}})
}
