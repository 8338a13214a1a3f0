package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/odvcencio/extbridge/pkg/messaging"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

type testEnv struct {
	relay  *messaging.Relay
	server *Server
	events *telemetry.Hub
	http   *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	events := telemetry.NewHub()
	relay := messaging.NewRelay(messaging.WithEvents(events))
	require.NoError(t, relay.Listen("echo", func(msg json.RawMessage, sender *messaging.Sender, _ messaging.Responder) messaging.Result {
		return messaging.Handled(map[string]any{"echo": msg, "tab": sender.TabID})
	}))
	server := NewServer(cfg, relay, events, opts...)
	relay.Setup(nil, server)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(events.Close)
	return &testEnv{relay: relay, server: server, events: events, http: ts}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + path
}

func dialPort(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, env.wsURL("/ws/port?"+query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeJSON(t *testing.T, conn *websocket.Conn, v string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(v)))
}

func waitForPorts(t *testing.T, relay *messaging.Relay, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, relay.Ports())
	}, 2*time.Second, 10*time.Millisecond, "ports = %v, want %v", relay.Ports(), want)
}

func TestPortRequestReply(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialPort(t, env, "name=popup&tabId=7&frameId=0&url=https://example.org/")
	waitForPorts(t, env.relay, "popup")

	writeJSON(t, conn, `{"auxProcessId":1,"channelName":"echo","msg":{"what":"hello"}}`)
	reply := readJSON(t, conn)
	assert.Equal(t, float64(1), reply["auxProcessId"])
	assert.Equal(t, "echo", reply["channelName"])
	assert.Equal(t, map[string]any{"echo": map[string]any{"what": "hello"}, "tab": float64(7)}, reply["msg"])

	// Garbage frames are dropped without closing the port.
	writeJSON(t, conn, `not json`)
	writeJSON(t, conn, `{"auxProcessId":2,"channelName":"echo","msg":1}`)
	reply = readJSON(t, conn)
	assert.Equal(t, float64(2), reply["auxProcessId"])
}

func TestPortWithoutNameGetsGeneratedName(t *testing.T) {
	env := newTestEnv(t, Config{})
	dialPort(t, env, "")
	require.Eventually(t, func() bool { return len(env.relay.Ports()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, env.relay.Ports()[0], 36)
}

func TestClosingSocketDisconnectsPort(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialPort(t, env, "name=a")
	waitForPorts(t, env.relay, "a")

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitForPorts(t, env.relay)
}

func TestControlAPI(t *testing.T) {
	env := newTestEnv(t, Config{})
	a := dialPort(t, env, "name=a&tabId=3")
	dialPort(t, env, "name=b&tabId=4")
	waitForPorts(t, env.relay, "a", "b")

	resp, err := http.Get(env.http.URL + "/api/ports")
	require.NoError(t, err)
	var listed struct {
		Ports []string `json:"ports"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	assert.Equal(t, []string{"a", "b"}, listed.Ports)

	resp, err = http.Post(env.http.URL+"/api/broadcast", "application/json", strings.NewReader(`{"what":"settingsChanged"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, map[string]any{"broadcast": true, "msg": map[string]any{"what": "settingsChanged"}}, readJSON(t, a))

	req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/tabs/3", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	waitForPorts(t, env.relay, "b")
}

func TestTabRemovalFreesPortSlot(t *testing.T) {
	env := newTestEnv(t, Config{MaxPorts: 1})
	a := dialPort(t, env, "name=a&tabId=7")
	waitForPorts(t, env.relay, "a")

	req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/tabs/7", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	waitForPorts(t, env.relay)

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, _, err = a.Read(readCtx)
	require.Error(t, err)
	require.NoError(t, readCtx.Err(), "socket of removed tab was left open")

	var b *websocket.Conn
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, env.wsURL("/ws/port?name=b&tabId=8"), nil)
		if err != nil {
			return false
		}
		b = conn
		return true
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { _ = b.Close(websocket.StatusNormalClosure, "") })
	waitForPorts(t, env.relay, "b")
}

func TestControlAPIRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, Config{})

	for _, tabID := range []string{"0", "-1", "abc"} {
		req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/tabs/"+tabID, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tabID)
	}

	resp, err := http.Post(env.http.URL+"/api/broadcast", "application/json", strings.NewReader(`{nope`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(env.http.URL+"/api/broadcast", "application/json", strings.NewReader(``))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPortRejections(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		server := NewServer(Config{}, messaging.NewRelay(), nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/port?name=a", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("origin", func(t *testing.T) {
		env := newTestEnv(t, Config{AllowedOrigins: []string{"chrome-extension://abc"}})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, resp, err := websocket.Dial(ctx, env.wsURL("/ws/port?name=a"), &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{"https://evil.test"}},
		})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		conn, _, err := websocket.Dial(ctx, env.wsURL("/ws/port?name=b"), &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{"chrome-extension://abc"}},
		})
		require.NoError(t, err)
		conn.Close(websocket.StatusNormalClosure, "")
	})

	t.Run("capacity", func(t *testing.T) {
		env := newTestEnv(t, Config{MaxPorts: 1})
		dialPort(t, env, "name=first")
		waitForPorts(t, env.relay, "first")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, resp, err := websocket.Dial(ctx, env.wsURL("/ws/port?name=second"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, _, err := websocket.Dial(ctx, env.wsURL("/ws/events?type=port."), nil)
	require.NoError(t, err)
	defer stream.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return env.events.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.events.Publish(telemetry.Event{Type: telemetry.EventBroadcast})
	dialPort(t, env, "name=watched&tabId=9")

	event := readJSON(t, stream)
	assert.Equal(t, string(telemetry.EventPortConnected), event["type"])
	assert.Equal(t, "watched", event["port"])
	assert.Equal(t, float64(9), event["tabId"])
}

func TestHealthz(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	env := newTestEnv(t, Config{}, WithHealthCheck(func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("database unavailable")
	}))

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	healthy.Store(false)
	resp, err = http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	dialPort(t, env, "name=m")
	waitForPorts(t, env.relay, "m")

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventFilter(t *testing.T) {
	all := eventFilter("")
	assert.True(t, all(telemetry.Event{Type: telemetry.EventCloudPushed}))

	some := eventFilter("port., relay.unhandled")
	assert.True(t, some(telemetry.Event{Type: telemetry.EventPortDisconnected}))
	assert.True(t, some(telemetry.Event{Type: telemetry.EventRequestUnhandled}))
	assert.False(t, some(telemetry.Event{Type: telemetry.EventCloudPulled}))
}
