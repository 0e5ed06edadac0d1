// Package dexscreener maintains websocket subscriptions to the screener
// feed and forwards raw binary frames into the pipeline. The endpoint is
// unofficial: it drops connections regularly and rejects clients that do not
// look like a browser, so the reader reconnects with exponential backoff and
// rotates browser headers on every dial.
package dexscreener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "dexflow/config"
	"dexflow/internal/channel"
	"dexflow/logger"
	"dexflow/models"
)

// ErrRetryExhausted is delivered on Fatal() when the reconnect budget is
// spent. The stream cannot make progress after this.
var ErrRetryExhausted = errors.New("reconnect attempts exhausted")

// State tracks the connection lifecycle of a reader.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "disconnected"
	}
}

// Reader streams one configured screener target.
type Reader struct {
	config   *appconfig.Config
	target   appconfig.TargetConfig
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	limiter  *rate.Limiter
	state    atomic.Int32
	fatal    chan error
}

func NewReader(cfg *appconfig.Config, target appconfig.TargetConfig, channels *channel.Channels) *Reader {
	return &Reader{
		config:   cfg,
		target:   target,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.Reader.RateLimit.RequestsPerSecond), cfg.Reader.RateLimit.BurstSize),
		fatal:    make(chan error, 1),
	}
}

// Start begins streaming. The reader owns its reconnect loop; callers watch
// Fatal() for unrecoverable failures.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader %s already running", r.target.Name)
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	wsURL, err := r.config.Source.StreamURL(r.target)
	if err != nil {
		return fmt.Errorf("target %s: %w", r.target.Name, err)
	}

	log := r.log.WithComponent("dexscreener_reader").WithFields(logger.Fields{
		"target": r.target.Name,
		"url":    wsURL,
	})
	log.Info("starting reader")

	r.wg.Add(1)
	go r.run(wsURL)

	return nil
}

// Stop waits for the stream loop to exit. Cancel the Start context first.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("dexscreener_reader").WithFields(logger.Fields{"target": r.target.Name}).Info("stopping reader")
	r.wg.Wait()
	r.setState(StateDisconnected)
	r.log.WithComponent("dexscreener_reader").WithFields(logger.Fields{"target": r.target.Name}).Info("reader stopped")
}

// Fatal delivers at most one unrecoverable error.
func (r *Reader) Fatal() <-chan error { return r.fatal }

func (r *Reader) State() State { return State(r.state.Load()) }

func (r *Reader) setState(s State) { r.state.Store(int32(s)) }

func (r *Reader) run(wsURL string) {
	defer r.wg.Done()

	log := r.log.WithComponent("dexscreener_reader").WithFields(logger.Fields{
		"target": r.target.Name,
		"worker": "stream",
	})

	bo := newBackOff(r.config.Reader.Retry)
	attempts := 0

	for {
		if r.ctx.Err() != nil {
			r.setState(StateDisconnected)
			return
		}

		r.setState(StateConnecting)

		// Connection attempts count against the outbound budget; the
		// endpoint bans clients that hammer it.
		if err := r.limiter.Wait(r.ctx); err != nil {
			r.setState(StateDisconnected)
			return
		}

		conn, err := r.dial(wsURL)
		if err != nil {
			attempts++
			log.WithError(err).WithFields(logger.Fields{"attempt": attempts}).Warn("connect failed")
			if attempts >= r.config.Reader.Retry.MaxAttempts {
				r.setState(StateDisconnected)
				select {
				case r.fatal <- fmt.Errorf("%w: %d attempts, last error: %v", ErrRetryExhausted, attempts, err):
				default:
				}
				return
			}
			r.setState(StateBackoff)
			if !r.sleep(bo.NextBackOff()) {
				r.setState(StateDisconnected)
				return
			}
			continue
		}

		r.setState(StateConnected)
		attempts = 0
		bo.Reset()
		log.Info("connected to screener feed")

		r.readLoop(conn, wsURL, log)
		conn.Close()

		if r.ctx.Err() != nil {
			r.setState(StateDisconnected)
			return
		}
		attempts++
		r.setState(StateBackoff)
		log.Warn("connection lost, reconnecting")
		if !r.sleep(bo.NextBackOff()) {
			r.setState(StateDisconnected)
			return
		}
	}
}

func (r *Reader) dial(wsURL string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout:  r.config.Reader.ConnectTimeout,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(r.ctx, wsURL, browserHeaders())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (r *Reader) readLoop(conn *websocket.Conn, wsURL string, log *logger.Entry) {
	readTimeout := r.config.Reader.ReadTimeout
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go r.heartbeat(conn, stop, log)

	for {
		if r.ctx.Err() != nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Warn("read failed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		// Text frames are handshake acks; only binary frames carry data.
		if msgType != websocket.BinaryMessage {
			continue
		}

		msg := models.RawFrameMessage{
			Source:     r.target.Name,
			URL:        wsURL,
			Data:       data,
			ReceivedAt: time.Now().UTC(),
		}
		if !r.channels.SendRaw(r.ctx, msg) {
			if r.ctx.Err() != nil {
				return
			}
			log.Warn("raw channel full, dropping frame")
			continue
		}
		logger.IncrementFrameRead(len(data))
	}
}

func (r *Reader) heartbeat(conn *websocket.Conn, stop <-chan struct{}, log *logger.Entry) {
	ticker := time.NewTicker(r.config.Reader.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.WithError(err).Warn("ping failed")
				return
			}
		}
	}
}

func (r *Reader) sleep(d time.Duration) bool {
	select {
	case <-r.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// browserHeaders builds a plausible browser handshake. The feed closes
// connections from clients without an Origin matching the site.
func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", nextUserAgent())
	h.Set("Origin", "https://dexscreener.com")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	return h
}
