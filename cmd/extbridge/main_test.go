package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/extbridge/pkg/bus"
	"github.com/odvcencio/extbridge/pkg/client"
	"github.com/odvcencio/extbridge/pkg/config"
	"github.com/odvcencio/extbridge/pkg/tabs"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

func TestParseStartupOptions(t *testing.T) {
	opts, err := parseStartupOptions([]string{"-config", "proj.yaml", "-bind", "127.0.0.1:9000", "-log-level", "debug"}, io.Discard)
	if err != nil {
		t.Fatalf("parseStartupOptions error: %v", err)
	}
	if opts.configPath != "proj.yaml" {
		t.Fatalf("configPath=%q want proj.yaml", opts.configPath)
	}
	if opts.bind != "127.0.0.1:9000" {
		t.Fatalf("bind=%q", opts.bind)
	}
	if opts.logLevel != "debug" {
		t.Fatalf("logLevel=%q", opts.logLevel)
	}

	if _, err := parseStartupOptions([]string{"serve"}, io.Discard); err == nil {
		t.Fatalf("expected error for stray argument")
	}
	if _, err := parseStartupOptions([]string{"-nope"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "server:\n  bind: 127.0.0.1:5000\nstorage:\n  path: " + filepath.Join(dir, "x.db") + "\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(startupOptions{configPath: path})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:5000" || cfg.Logging.Level != "warn" {
		t.Fatalf("file values not applied: bind=%q level=%q", cfg.Server.Bind, cfg.Logging.Level)
	}

	cfg, err = loadConfig(startupOptions{configPath: path, bind: "127.0.0.1:6000", logLevel: "DEBUG"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:6000" || cfg.Logging.Level != "debug" {
		t.Fatalf("flag overrides not applied: bind=%q level=%q", cfg.Server.Bind, cfg.Logging.Level)
	}

	if _, err := loadConfig(startupOptions{configPath: path, logLevel: "loud"}); err == nil {
		t.Fatalf("expected validation error for bad log level")
	}
}

// testApp wires a full background process over a memory bus and returns a
// connected client.
func testApp(t *testing.T) (*app, *client.Client) {
	t.Helper()
	dir := t.TempDir()
	managed := filepath.Join(dir, "managed.yaml")
	require.NoError(t, os.WriteFile(managed, []byte("adminSettings: locked\ndisabledPopupPanelParts: [3]\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "extbridge.db")
	cfg.Bus.Backend = config.BusBackendMemory
	cfg.Bus.Timeout = time.Second
	cfg.Managed.Path = managed
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		a.Close(context.Background())
	})

	ts := httptest.NewServer(a.server.Handler())
	t.Cleanup(ts.Close)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	c, err := client.Dial(dialCtx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/port", client.Options{TabID: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return a, c
}

func send(t *testing.T, c *client.Client, channel string, msg any) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	reply, err := c.Send(ctx, channel, msg)
	require.NoError(t, err)
	return reply
}

func TestDefaultHandler(t *testing.T) {
	_, c := testApp(t)

	assert.JSONEq(t, `"pong"`, string(send(t, c, "", map[string]any{"what": "ping"})))
	assert.JSONEq(t, `"locked"`, string(send(t, c, "", map[string]any{"what": "getAdminItem", "key": "adminSettings"})))
	assert.JSONEq(t, `[3]`, string(send(t, c, "", map[string]any{"what": "getAdminItem", "key": "disabledPopupPanelParts"})))
	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "getAdminItem", "key": "missing"})))
	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "nobodyHandlesThis"})))
}

func TestCloudAndCacheChannels(t *testing.T) {
	_, c := testApp(t)

	doc := map[string]any{"netWhitelist": strings.Repeat("example.com\n", 900)}
	assert.JSONEq(t, `null`, string(send(t, c, "cloud", map[string]any{"what": "cloudPush", "datakey": "whitelist", "data": doc})))

	var entry struct {
		Source string          `json:"source"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(send(t, c, "cloud", map[string]any{"what": "cloudPull", "datakey": "whitelist"}), &entry))
	want, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(entry.Data))
	assert.NotEmpty(t, entry.Source)

	assert.JSONEq(t, `null`, string(send(t, c, "cloud", map[string]any{"what": "cloudPull", "datakey": "missing"})))

	send(t, c, "cacheStorage", map[string]any{"what": "set", "items": map[string]any{"compiled": "abc", "n": 2}})
	got := send(t, c, "cacheStorage", map[string]any{"what": "get", "keys": []string{"compiled", "absent"}})
	assert.JSONEq(t, `{"compiled":"abc"}`, string(got))
}

func TestTabCallsGoThroughHostBridge(t *testing.T) {
	a, c := testApp(t)

	created := make(chan tabs.CreateProperties, 1)
	sub, err := bus.Serve(context.Background(), a.bus, bus.HostSubject("tabs", "create"), func(data []byte) (any, error) {
		var props tabs.CreateProperties
		if err := json.Unmarshal(data, &props); err != nil {
			return nil, err
		}
		created <- props
		return tabs.Tab{ID: 9, WindowID: 1}, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	reply := send(t, c, "", map[string]any{"what": "gotoURL", "details": map[string]any{"url": "https://example.com/"}})
	assert.JSONEq(t, `null`, string(reply))

	select {
	case props := <-created:
		assert.Equal(t, "https://example.com/", props.URL)
		assert.True(t, props.Active)
	case <-time.After(time.Second):
		t.Fatal("tab was not created")
	}

	// No adapter answers reloads; the request is still answered.
	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "reloadTab", "tabId": 9})))
}

func TestTabQueriesGoThroughHostBridge(t *testing.T) {
	a, c := testApp(t)

	serveHost := func(op string, fn func(data []byte) (any, error)) {
		sub, err := bus.Serve(context.Background(), a.bus, bus.HostSubject("tabs", op), fn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })
	}
	serveHost("get", func(data []byte) (any, error) {
		return tabs.Tab{ID: 4, WindowID: 1, URL: "https://example.com/"}, nil
	})
	serveHost("query", func(data []byte) (any, error) {
		return []tabs.Tab{{ID: 6, WindowID: 1, Active: true}}, nil
	})
	updated := make(chan map[string]any, 1)
	serveHost("update", func(data []byte) (any, error) {
		var in map[string]any
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		updated <- in
		return tabs.Tab{ID: 4}, nil
	})
	removed := make(chan map[string]any, 1)
	serveHost("remove", func(data []byte) (any, error) {
		var in map[string]any
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
		removed <- in
		return nil, nil
	})

	var tab tabs.Tab
	require.NoError(t, json.Unmarshal(send(t, c, "", map[string]any{"what": "getTab", "tabId": 4}), &tab))
	assert.Equal(t, "https://example.com/", tab.URL)

	require.NoError(t, json.Unmarshal(send(t, c, "", map[string]any{"what": "getTab"}), &tab))
	assert.Equal(t, 6, tab.ID)

	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "getTab", "tabId": -1})))

	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "replaceTab", "tabId": 4, "url": "https://example.org/"})))
	select {
	case in := <-updated:
		assert.Equal(t, float64(4), in["tabId"])
		assert.Equal(t, "https://example.org/", in["url"])
	case <-time.After(time.Second):
		t.Fatal("tab was not updated")
	}

	assert.JSONEq(t, `null`, string(send(t, c, "", map[string]any{"what": "removeTab", "tabId": 4})))
	select {
	case in := <-removed:
		assert.Equal(t, float64(4), in["tabId"])
	case <-time.After(time.Second):
		t.Fatal("tab was not removed")
	}
}

func TestHostNavigationIsBroadcast(t *testing.T) {
	a, c := testApp(t)
	require.Eventually(t, func() bool { return len(a.relay.Ports()) == 1 }, 2*time.Second, 10*time.Millisecond)

	events, unsubscribe := a.hub.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, a.bus.Publish(ctx, bus.HostSubject("tabs", "committed"),
		[]byte(`{"tabId":4,"frameId":0,"url":"https://bücher.example/"}`)))

	select {
	case msg := <-c.Broadcasts():
		assert.JSONEq(t, `{"what":"tabNavigated","tabId":4,"url":"https://xn--bcher-kva.example/"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("navigation was not broadcast")
	}

	require.Eventually(t, func() bool {
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return false
				}
				if e.Type == telemetry.EventTabNavigation {
					return e.TabID == 4
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHostTabRemovalClosesItsPorts(t *testing.T) {
	a, c := testApp(t)
	require.Eventually(t, func() bool { return len(a.relay.Ports()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.bus.Publish(context.Background(), bus.HostSubject("tabs", "removed"), []byte(`{"tabId":4}`)))

	require.Eventually(t, func() bool { return len(a.relay.Ports()) == 0 }, 2*time.Second, 10*time.Millisecond)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("socket of removed tab was left open")
	}
}
