package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market_terminal/internal/models"
)

const writeWait = 10 * time.Second

// ConnState is the lifecycle of the streaming connection.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// FrameRouter consumes one inbound text frame.
type FrameRouter interface {
	RouteFrame(frame []byte) bool
}

// StatusSink receives every connection status transition.
type StatusSink interface {
	SetConnectionStatus(models.ConnectionStatus)
}

type Config struct {
	URL              string
	Backoff          Backoff
	HandshakeTimeout time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
	ReadLimit        int64
}

// Client keeps one receive-only websocket alive. A closed or failed
// connection is retried after Backoff.Delay(attempt); the attempt counter
// resets on every successful open.
//
// Start and Stop must not be called concurrently with each other, and must
// not be called from a status subscriber.
type Client struct {
	cfg    Config
	router FrameRouter
	status StatusSink
	sched  Scheduler
	dialer *websocket.Dialer
	log    *zap.Logger

	mu      sync.Mutex
	pub     sync.Mutex
	running bool
	gen     uint64
	timer   Timer
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	state   atomic.Int32
	attempt atomic.Int64
}

func NewClient(cfg Config, router FrameRouter, status StatusSink, sched Scheduler, log *zap.Logger) *Client {
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.PingPeriod > 0 && cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod * 2
	}
	if sched == nil {
		sched = SystemScheduler()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		router: router,
		status: status,
		sched:  sched,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: log.With(zap.String("url", cfg.URL)),
	}
}

func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

// Stopped reports that Stop ran and no reconnect is pending.
func (c *Client) Stopped() bool { return c.State() == StateIdle }

// Attempt is the index used for the next backoff computation.
func (c *Client) Attempt() int { return int(c.attempt.Load()) }

// Start connects immediately. A pending reconnect timer is cancelled first;
// calling Start while connecting or open does nothing.
func (c *Client) Start() {
	c.mu.Lock()
	if c.running && c.State() != StateClosed {
		c.mu.Unlock()
		return
	}
	if !c.running {
		c.running = true
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.stopTimer()
	c.connectLocked()
	c.publishAndUnlock(models.StatusConnecting)
}

// Stop closes the connection, cancels any pending reconnect and waits for
// the read loop to exit. No frame is routed after Stop returns. Safe to call
// more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.gen++
	c.stopTimer()
	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(StateIdle)
	c.attempt.Store(0)
	c.publishAndUnlock(models.StatusDisconnected)

	c.wg.Wait()
	c.log.Info("stream stopped")
}

// connectLocked starts a new connection generation. mu must be held.
func (c *Client) connectLocked() {
	c.gen++
	c.setState(StateConnecting)
	c.wg.Add(1)
	go c.run(c.ctx, c.gen)
}

// stopTimer cancels a pending reconnect. mu must be held.
func (c *Client) stopTimer() {
	if c.timer == nil {
		return
	}
	if c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

// publishAndUnlock hands the status to the sink in transition order without
// holding mu while subscribers run. mu must be held on entry.
func (c *Client) publishAndUnlock(s models.ConnectionStatus) {
	c.pub.Lock()
	c.mu.Unlock()
	defer c.pub.Unlock()
	c.status.SetConnectionStatus(s)
}

func (c *Client) live(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}

func (c *Client) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("stream dial failed", zap.Error(err))
		}
		c.closed(gen)
		return
	}
	if !c.opened(gen, conn) {
		_ = conn.Close()
		return
	}

	c.read(gen, conn)
	c.closed(gen)
}

func (c *Client) opened(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.attempt.Store(0)
	c.stopTimer()
	c.setState(StateOpen)
	c.log.Info("stream connected")
	c.publishAndUnlock(models.StatusConnected)
	return true
}

// read routes frames until the connection fails. Any read error, including
// a keepalive timeout, ends the loop and closes the socket.
func (c *Client) read(gen uint64, conn *websocket.Conn) {
	defer conn.Close()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	done := make(chan struct{})
	defer close(done)

	if c.cfg.PingPeriod > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		})
		c.wg.Add(1)
		go c.ping(conn, done)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if c.live(gen) {
				c.log.Info("stream read ended", zap.Error(err))
			}
			return
		}
		if !c.live(gen) {
			return
		}
		c.router.RouteFrame(frame)
	}
}

func (c *Client) ping(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()

	t := time.NewTicker(c.cfg.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("stream ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// closed moves to Closed and schedules the next attempt.
func (c *Client) closed(gen uint64) {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	n := int(c.attempt.Add(1) - 1)
	delay := c.cfg.Backoff.Delay(n)
	c.setState(StateClosed)
	c.wg.Add(1)
	c.timer = c.sched.AfterFunc(delay, func() { c.reconnect(gen) })
	c.log.Info("stream reconnect scheduled", zap.Int("attempt", n), zap.Duration("delay", delay))
	c.publishAndUnlock(models.StatusDisconnected)
}

func (c *Client) reconnect(gen uint64) {
	defer c.wg.Done()

	c.mu.Lock()
	if !c.running || c.gen != gen || c.State() != StateClosed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.connectLocked()
	c.publishAndUnlock(models.StatusConnecting)
}
