package ws

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
)

type streamFixture struct {
	hub      *Hub
	registry *environment.Registry
	server   *httptest.Server
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(DefaultConfig(), nil, nil)
	reg := environment.NewRegistry(environment.WithSurfaceOptions(surface.WithFlushDelay(time.Hour)))
	reg.SetSender(hub)
	reg.SetHistoryClearer(hub.ClearHistory)
	reg.SetResetNotifier(hub.Reset)

	router := gin.New()
	router.GET("/ws", NewHandler(hub, reg, nil).HandleConnection)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		reg.ResetAll()
	})
	return &streamFixture{hub: hub, registry: reg, server: srv}
}

func (f *streamFixture) dial(t *testing.T, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, sonic.Unmarshal(data, &frame))
	return frame
}

func TestHandleConnectionRequiresURI(t *testing.T) {
	f := newStreamFixture(t)

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamSnapshotThenMutations(t *testing.T) {
	f := newStreamFixture(t)
	s := f.registry.Get("ui://a")
	el := s.CreateElement("p")
	require.NoError(t, s.AppendChild(s.Root(), el))

	conn := f.dial(t, url.Values{"uri": {"ui://a"}})

	snap := readFrame(t, conn)
	assert.Equal(t, FrameSnapshot, snap["type"])
	assert.Equal(t, "ui://a", snap["uri"])
	root := snap["root"].(map[string]any)
	assert.Equal(t, "~", root["id"])
	assert.Len(t, root["children"], 1)

	// Sync flushed the pending insert before serialising
	assert.Zero(t, s.Pending())

	require.NoError(t, s.UpdateText(s.CreateText("x"), "y"))
	require.NoError(t, s.SetProperty(el, "title", "hello"))
	s.Flush()

	msg := readFrame(t, conn)
	assert.Equal(t, "mutate", msg["type"])
	assert.Equal(t, "ui://a", msg["uri"])
	assert.Equal(t, []any{[]any{3.0, string(el), "title", "hello", ""}}, msg["mutations"])
}

func TestStreamControlFrames(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, url.Values{"uri": {"ui://a"}})
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, map[string]any{"type": "pong"}, readFrame(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame["type"])
	assert.Contains(t, frame["error"], "bogus")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, map[string]any{"type": "error", "error": "invalid message"}, readFrame(t, conn))
}

func TestStreamFlushRequest(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, url.Values{"uri": {"ui://a"}})
	readFrame(t, conn)

	s := f.registry.Get("ui://a")
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("hi")))
	require.Equal(t, 1, s.Pending())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"flush"}`)))
	msg := readFrame(t, conn)
	assert.Equal(t, "mutate", msg["type"])
	assert.Len(t, msg["mutations"], 1)
}

func TestStreamResume(t *testing.T) {
	f := newStreamFixture(t)
	first := f.dial(t, url.Values{"uri": {"ui://a"}})
	snap := readFrame(t, first)
	epoch := snap["epoch"].(float64)

	s := f.registry.Get("ui://a")
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("one")))
	s.Flush()
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("two")))
	s.Flush()
	readFrame(t, first)
	readFrame(t, first)

	// A client that saw the first message resumes with the second
	resumed := f.dial(t, url.Values{
		"uri":   {"ui://a"},
		"epoch": {strconv.FormatUint(uint64(epoch), 10)},
		"since": {"1"},
	})
	msg := readFrame(t, resumed)
	assert.Equal(t, "mutate", msg["type"])
	tuple := msg["mutations"].([]any)[0].([]any)
	assert.Equal(t, "two", tuple[2].(map[string]any)["data"])

	// A stale epoch gets a fresh snapshot instead
	stale := f.dial(t, url.Values{
		"uri":   {"ui://a"},
		"epoch": {strconv.FormatUint(uint64(epoch)+100, 10)},
		"since": {"0"},
	})
	fresh := readFrame(t, stale)
	assert.Equal(t, FrameSnapshot, fresh["type"])
	assert.Greater(t, fresh["epoch"].(float64), epoch)
}

func TestStreamReset(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, url.Values{"uri": {"ui://a"}})
	readFrame(t, conn)

	f.hub.Reset("ui://a")

	assert.Equal(t, map[string]any{"type": "reset", "uri": "ui://a"}, readFrame(t, conn))
}

func TestRegistryResetFramePrecedesReplacementMutations(t *testing.T) {
	f := newStreamFixture(t)
	old := f.registry.Get("ui://a")
	require.NoError(t, old.AppendChild(old.Root(), old.CreateText("old")))
	conn := f.dial(t, url.Values{"uri": {"ui://a"}})
	assert.Equal(t, FrameSnapshot, readFrame(t, conn)["type"])

	require.True(t, f.registry.Reset("ui://a"))
	s := f.registry.Get("ui://a")
	require.NoError(t, s.AppendChild(s.Root(), s.CreateText("new")))
	s.Flush()

	assert.Equal(t, map[string]any{"type": "reset", "uri": "ui://a"}, readFrame(t, conn))
	msg := readFrame(t, conn)
	assert.Equal(t, "mutate", msg["type"])
	tuple := msg["mutations"].([]any)[0].([]any)
	assert.Equal(t, "new", tuple[2].(map[string]any)["data"])
}
