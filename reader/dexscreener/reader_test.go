package dexscreener

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "dexflow/config"
	"dexflow/internal/channel"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func testConfig(url string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Reader.ConnectTimeout = 2 * time.Second
	cfg.Reader.ReadTimeout = 5 * time.Second
	cfg.Reader.HeartbeatInterval = time.Second
	cfg.Reader.RateLimit.RequestsPerSecond = 1000
	cfg.Reader.RateLimit.BurstSize = 10
	cfg.Reader.Retry.MaxAttempts = 5
	cfg.Reader.Retry.BaseDelay = 10 * time.Millisecond
	cfg.Reader.Retry.MaxDelay = 50 * time.Millisecond
	cfg.Source.URL = url
	return cfg
}

func wsAddr(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBackOffSchedule(t *testing.T) {
	bo := newBackOff(appconfig.RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	})
	bo.RandomizationFactor = 0
	bo.Reset()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := bo.NextBackOff(); got != w {
			t.Fatalf("step %d: got %v, want %v", i, got, w)
		}
	}

	bo.Reset()
	if got := bo.NextBackOff(); got != 100*time.Millisecond {
		t.Errorf("after reset: got %v, want 100ms", got)
	}
}

func TestReaderReconnectsAfterFailures(t *testing.T) {
	frame := []byte{0x00, '\n', '1', '.', '3', '.', '0', '\n'}
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) <= 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := testConfig(wsAddr(srv))
	ch := channel.NewChannels(8, 8)
	defer ch.Close()

	target := appconfig.TargetConfig{Name: "test", Timeframe: "h24", RankBy: "volume", Order: "desc"}
	r := NewReader(cfg, target, ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case msg := <-ch.Raw:
		if !bytes.Equal(msg.Data, frame) {
			t.Errorf("frame data mismatch: got %x", msg.Data)
		}
		if msg.Source != "test" {
			t.Errorf("source: got %q, want test", msg.Source)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	if got := calls.Load(); got < 4 {
		t.Errorf("expected at least 4 connection attempts, got %d", got)
	}
	if got := r.State(); got != StateConnected {
		t.Errorf("state: got %v, want connected", got)
	}
	select {
	case err := <-r.Fatal():
		t.Fatalf("unexpected fatal error: %v", err)
	default:
	}

	cancel()
	r.Stop()
}

func TestReaderFatalAfterExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(wsAddr(srv))
	cfg.Reader.Retry.MaxAttempts = 2
	ch := channel.NewChannels(8, 8)
	defer ch.Close()

	target := appconfig.TargetConfig{Name: "test", Timeframe: "h24", RankBy: "volume", Order: "desc"}
	r := NewReader(cfg, target, ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case err := <-r.Fatal():
		if !errors.Is(err, ErrRetryExhausted) {
			t.Errorf("fatal error: got %v, want ErrRetryExhausted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no fatal error delivered")
	}

	cancel()
	r.Stop()
}

func TestDoubleStartRejected(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1")
	cfg.Reader.Retry.MaxAttempts = 1
	ch := channel.NewChannels(1, 1)
	defer ch.Close()

	target := appconfig.TargetConfig{Name: "dup", Timeframe: "h24", RankBy: "volume", Order: "desc"}
	r := NewReader(cfg, target, ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	cancel()
	r.Stop()
}
