package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/remotedom/internal/api/ws"
	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
	"github.com/GriffinCanCode/remotedom/internal/domain/script"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/tracing"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []*mutation.Message
}

func (c *captureSender) Send(msg *mutation.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) messages() []*mutation.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*mutation.Message(nil), c.msgs...)
}

type fixture struct {
	router   *gin.Engine
	registry *environment.Registry
	hub      *ws.Hub
	sent     *captureSender
}

func newFixture(t *testing.T, maxBody int64) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(ws.DefaultConfig(), nil, nil)
	sent := &captureSender{}
	reg := environment.NewRegistry(environment.WithSurfaceOptions(surface.WithFlushDelay(time.Hour)))
	reg.SetSender(surface.MultiSender{hub, sent})
	reg.SetHistoryClearer(hub.ClearHistory)
	reg.SetResetNotifier(hub.Reset)

	pool, err := script.NewPool(script.DefaultConfig(), 1)
	require.NoError(t, err)
	tracer := tracing.New("test", nil)

	h := NewHandlers(Deps{
		Registry:     reg,
		Hub:          hub,
		Scripts:      pool,
		Metrics:      monitoring.NewMetrics(),
		Tracer:       tracer,
		Info:         Info{Service: "remotedom", Version: "test", Instance: "i-1"},
		MaxBodyBytes: maxBody,
	})
	router := gin.New()
	h.Register(router)

	t.Cleanup(func() {
		reg.ResetAll()
		hub.Close()
		pool.Close()
		tracer.Close()
	})
	return &fixture{router: router, registry: reg, hub: hub, sent: sent}
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do("GET", "/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "remotedom", body["service"])
	assert.Equal(t, "i-1", body["instance"])
	assert.Contains(t, body, "metrics")

	w = f.do("GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestMissingURI(t *testing.T) {
	f := newFixture(t, 0)

	routes := []struct{ method, path string }{
		{"GET", "/surfaces/snapshot"},
		{"GET", "/surfaces/html"},
		{"POST", "/surfaces/html"},
		{"POST", "/surfaces/script"},
		{"POST", "/surfaces/call"},
		{"POST", "/surfaces/flush"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			w := f.do(r.method, r.path, "", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"uri is required"}`, w.Body.String())
		})
	}
}

func TestUnknownSurface(t *testing.T) {
	f := newFixture(t, 0)

	routes := []struct{ method, path, body string }{
		{"GET", "/surfaces/snapshot?uri=ui://none", ""},
		{"GET", "/surfaces/html?uri=ui://none", ""},
		{"POST", "/surfaces/call?uri=ui://none", `{"method":"focus"}`},
		{"POST", "/surfaces/flush?uri=ui://none", ""},
		{"DELETE", "/surfaces?uri=ui://none", ""},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			w := f.do(r.method, r.path, "application/json", r.body)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
	assert.Zero(t, f.registry.Len())
}

func TestImportRenderAndSnapshot(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do("POST", "/surfaces/html?uri=ui://a", "text/html", `<p title="lead">Hello <b>world</b></p><script>alert(1)</script>`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Len(t, body["nodes"], 1)
	assert.Equal(t, 1.0, body["pending"])

	w = f.do("GET", "/surfaces/html?uri=ui://a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `<p title="lead">Hello <b>world</b></p>`, w.Body.String())

	w = f.do("GET", "/surfaces/snapshot?uri=ui://a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	root := decode(t, w)["root"].(map[string]any)
	assert.Equal(t, string(tree.RootID), root["id"])
	assert.Len(t, root["children"], 1)

	// Reading never flushes
	s, ok := f.registry.Lookup("ui://a")
	require.True(t, ok)
	assert.Equal(t, 1, s.Pending())
}

func TestImportErrors(t *testing.T) {
	f := newFixture(t, 64)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"binary body", "/surfaces/html?uri=ui://a", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", http.StatusBadRequest},
		{"whitespace only", "/surfaces/html?uri=ui://a", "   \n  ", http.StatusUnprocessableEntity},
		{"unknown parent", "/surfaces/html?uri=ui://a&parent=missing", "<p>x</p>", http.StatusNotFound},
		{"too large", "/surfaces/html?uri=ui://a", "<p>" + strings.Repeat("x", 100) + "</p>", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("POST", tt.target, "text/html", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, decode(t, w), "error")
		})
	}
}

func TestImportIntoTextNodeIsRejected(t *testing.T) {
	f := newFixture(t, 0)
	s := f.registry.Get("ui://a")
	text := s.CreateText("leaf")
	require.NoError(t, s.AppendChild(s.Root(), text))

	w := f.do("POST", "/surfaces/html?uri=ui://a&parent="+string(text), "text/html", "<p>x</p>")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRunScriptFlushes(t *testing.T) {
	f := newFixture(t, 0)

	src := `
		const el = document.createElement("section");
		el.setProperty("hidden", true);
		document.root.appendChild(el);
		console.log("built", el.id);
		remote.call("focus", el.id);
		document.root.children().length;
	`
	w := f.do("POST", "/surfaces/script?uri=ui://a", "application/javascript", src)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 1.0, body["value"])
	assert.Len(t, body["console"], 1)
	assert.Len(t, body["calls"], 1)

	msgs := f.sent.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, mutation.TypeMutate, msgs[0].Type)
	assert.Equal(t, mutation.TypeCall, msgs[1].Type)
	assert.Equal(t, "focus", msgs[1].Method)

	s, _ := f.registry.Lookup("ui://a")
	assert.Zero(t, s.Pending())
}

func TestRunScriptJSONBody(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do("POST", "/surfaces/script?uri=ui://a", "application/json", `{"source":"document.uri"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ui://a", decode(t, w)["value"])

	w = f.do("POST", "/surfaces/script?uri=ui://a", "application/json", `{"source":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/surfaces/script?uri=ui://a", "application/json", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNonFiniteNumbersStayServable(t *testing.T) {
	f := newFixture(t, 0)

	src := `
		const el = document.createElement("meter");
		el.setProperty("value", NaN);
		document.root.appendChild(el);
		remote.call("measure", Infinity, 1);
		NaN;
	`
	w := f.do("POST", "/surfaces/script?uri=ui://nan", "application/javascript", src)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, decode(t, w)["value"])

	msgs := f.sent.messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		_, err := mutation.Encode(msg)
		assert.NoError(t, err)
	}
	_, sent := f.hub.Epoch("ui://nan")
	assert.Equal(t, uint64(2), sent)

	w = f.do("GET", "/surfaces/snapshot?uri=ui://nan", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	root := decode(t, w)["root"].(map[string]any)
	meter := root["children"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"value": nil}, meter["properties"])
}

func TestRunScriptErrors(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do("POST", "/surfaces/script?uri=ui://a", "text/plain", `console.warn("about to fail"); throw new Error("boom")`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "boom")
	assert.Len(t, body["console"], 1)

	// Removing a child that does not exist breaks a tree invariant
	w = f.do("POST", "/surfaces/script?uri=ui://a", "text/plain", `document.root.removeChildAt(5)`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The runtime survives
	w = f.do("POST", "/surfaces/script?uri=ui://a", "text/plain", `1 + 1`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["value"])
}

func TestCallFlushesFirst(t *testing.T) {
	f := newFixture(t, 0)
	s := f.registry.Get("ui://a")
	require.NoError(t, s.AppendChild(s.Root(), s.CreateElement("div")))

	w := f.do("POST", "/surfaces/call?uri=ui://a", "application/json", `{"method":"scrollTo","args":[0,120]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["id"])

	msgs := f.sent.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, mutation.TypeMutate, msgs[0].Type)
	assert.Equal(t, []any{float64(0), float64(120)}, msgs[1].Args)

	w = f.do("POST", "/surfaces/call?uri=ui://a", "application/json", `{"args":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlush(t *testing.T) {
	f := newFixture(t, 0)
	s := f.registry.Get("ui://a")
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("a")))
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("b")))

	w := f.do("POST", "/surfaces/flush?uri=ui://a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["flushed"])

	msgs := f.sent.messages()
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].Mutations, 2)

	_, sent := f.hub.Epoch("ui://a")
	assert.Equal(t, uint64(1), sent)
}

func TestListAndReset(t *testing.T) {
	f := newFixture(t, 0)
	a := f.registry.Get("ui://a")
	require.NoError(t, a.AppendChild(a.Root(), a.CreateText("x")))
	f.registry.Get("ui://b")

	w := f.do("GET", "/surfaces", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	list := body["surfaces"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, map[string]any{"uri": "ui://a", "nodes": 2.0, "pending": 1.0}, list[0])
	assert.Contains(t, body, "stream")
	assert.Contains(t, body, "scripts")

	w = f.do("DELETE", "/surfaces?uri=ui://a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ui://b"}, f.registry.URIs())
	// Pending records of a reset surface are never delivered
	assert.Empty(t, f.sent.messages())

	w = f.do("DELETE", "/surfaces", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reset":["ui://b"]}`, w.Body.String())
	assert.Zero(t, f.registry.Len())
}

func TestResetDropsStreamChannel(t *testing.T) {
	f := newFixture(t, 0)
	a := f.registry.Get("ui://a")
	require.NoError(t, a.AppendChild(a.Root(), a.CreateText("x")))
	a.Flush()
	epoch, sent := f.hub.Epoch("ui://a")
	require.Equal(t, uint64(1), sent)
	require.Equal(t, 1, f.hub.Stats().Channels)

	w := f.do("DELETE", "/surfaces?uri=ui://a", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.hub.Stats().Channels)

	// The replacement surface streams under a new epoch
	b := f.registry.Get("ui://a")
	require.NoError(t, b.AppendChild(b.Root(), b.CreateText("y")))
	b.Flush()
	next, sent := f.hub.Epoch("ui://a")
	assert.Equal(t, uint64(1), sent)
	assert.NotEqual(t, epoch, next)

	w = f.do("DELETE", "/surfaces?uri=ui://none", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadBodyLimit(t *testing.T) {
	f := newFixture(t, 16)

	req := httptest.NewRequest("POST", "/surfaces/call?uri=ui://a", bytes.NewReader(bytes.Repeat([]byte("a"), 64)))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"request body too large"}`, w.Body.String())
}

func TestQuery(t *testing.T) {
	f := newFixture(t, 0)
	w := f.do("POST", "/surfaces/html?uri=ui://q", "text/html", `<ul><li>a</li><li title="x">b</li></ul>`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	query := func(params url.Values) *httptest.ResponseRecorder {
		params.Set("uri", "ui://q")
		return f.do("GET", "/surfaces/query?"+params.Encode(), "", "")
	}

	w = query(url.Values{"selector": {"li[title]"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"])
	match := body["matches"].([]any)[0].(map[string]any)
	assert.Equal(t, "li", match["element"])
	assert.Equal(t, "b", match["text"])
	assert.Equal(t, `<li title="x">b</li>`, match["html"])

	w = query(url.Values{"xpath": {"//li/text()"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2.0, decode(t, w)["count"])

	tests := []struct {
		name   string
		params url.Values
		status int
	}{
		{name: "neither", params: url.Values{}, status: http.StatusBadRequest},
		{name: "both", params: url.Values{"selector": {"li"}, "xpath": {"//li"}}, status: http.StatusBadRequest},
		{name: "bad selector", params: url.Values{"selector": {"li["}}, status: http.StatusBadRequest},
		{name: "bad xpath", params: url.Values{"xpath": {"//li["}}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, query(tt.params).Code)
		})
	}

	w = f.do("GET", "/surfaces/query?uri=ui://absent&selector=li", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportLatin1(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do("POST", "/surfaces/html?uri=ui://latin", "text/html", "<p>caf\xe9 cr\xe8me</p>")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	s, ok := f.registry.Lookup("ui://latin")
	require.True(t, ok)
	out, err := s.Serialize(s.Snapshot().Children[0].ID)
	require.NoError(t, err)
	require.Len(t, out.Children, 1)
	assert.True(t, utf8.ValidString(out.Children[0].Data))
}
