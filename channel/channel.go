package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"minute/log"
)

var (
	// ErrChannelExhausted is delivered through OnGaveUp once the retry
	// budget is spent. Recovery requires a manual Connect.
	ErrChannelExhausted = errors.New("channel retry budget exhausted")

	// ErrCleanClose is returned by Socket.Read when the peer shut the
	// connection down normally. No reconnect is attempted for it.
	ErrCleanClose = errors.New("channel closed cleanly")
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateGaveUp:
		return "gave-up"
	}
	return "unknown"
}

// Socket is one physical connection. Read blocks until a full message or an
// error; a normal peer shutdown must be reported as ErrCleanClose.
type Socket interface {
	Write(data []byte) error
	Read() ([]byte, error)
	Close() error
}

type Dialer func(ctx context.Context, url string) (Socket, error)

type Options struct {
	Dialer          Dialer        // defaults to DialWebsocket
	RetryBudget     int           // reconnect attempts before giving up (default 5)
	BaseDelay       time.Duration // backoff base (default 1s)
	ConnectThrottle time.Duration // minimum gap between connect attempts (default 1s)
	DialTimeout     time.Duration // per-attempt dial deadline (default 10s)
	OnState         func(State)
	OnGaveUp        func(error)
}

// Channel maintains one logical duplex connection to the remote service,
// hiding physical reconnects from callers. Messages sent while disconnected
// are queued and flushed in FIFO order when the connection opens.
type Channel struct {
	url      string
	opts     Options
	registry *Registry
	queue    *PendingQueue

	mu          sync.Mutex
	state       State
	sock        Socket
	gen         int // connection generation; stale readers and timers check it
	attempts    int
	lastAttempt time.Time
	retryTimer  *time.Timer
	gaveUpFired bool
	shutdown    bool
}

func New(url string, opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = DialWebsocket
	}
	if opts.RetryBudget == 0 {
		opts.RetryBudget = 5
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Second
	}
	if opts.ConnectThrottle == 0 {
		opts.ConnectThrottle = time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Channel{
		url:      url,
		opts:     opts,
		registry: NewRegistry(),
		queue:    &PendingQueue{},
	}
}

func (c *Channel) Registry() *Registry { return c.registry }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Pending() int { return c.queue.Len() }

// Connect is idempotent: a no-op while open or connecting, and repeat calls
// inside the throttle window are ignored to avoid hot-looping. Calling it
// from StateGaveUp resets the retry budget (the manual-retry path).
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.shutdown || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	if time.Since(c.lastAttempt) < c.opts.ConnectThrottle {
		c.mu.Unlock()
		return
	}
	if c.state == StateGaveUp {
		c.attempts = 0
		c.gaveUpFired = false
	}
	c.beginAttemptLocked()
	c.mu.Unlock()
	c.notifyState(StateConnecting)
}

// caller holds mu
func (c *Channel) beginAttemptLocked() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.gen++
	c.lastAttempt = time.Now()
	c.state = StateConnecting
	go c.dial(c.gen)
}

func (c *Channel) dial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	sock, err := c.opts.Dialer(ctx, c.url)
	cancel()

	c.mu.Lock()
	if c.shutdown || gen != c.gen {
		c.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return
	}
	if err != nil {
		c.scheduleRetryLocked(err) // releases mu
		return
	}
	c.sock = sock
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	log.ChannelState("open", 0, 0)
	c.notifyState(StateOpen)
	go c.readLoop(sock, gen)
	c.flush()
}

// Send transmits immediately when the channel is open, returning the result
// of the local write. Otherwise the envelope is appended to the pending
// queue, a connect is kicked if the channel is fully closed, and false is
// returned: queued, not dropped.
func (c *Channel) Send(env Envelope) bool {
	c.mu.Lock()
	open := c.state == StateOpen
	kick := c.state == StateClosed && !c.shutdown
	c.mu.Unlock()

	if open {
		return c.writeNow(env)
	}

	c.queue.Enqueue(env)
	if kick {
		c.Connect()
	}
	return false
}

func (c *Channel) writeNow(env Envelope) bool {
	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || sock == nil {
		return false
	}

	raw, err := json.Marshal(env)
	if err != nil {
		log.Errorf("marshaling %q envelope: %v", env.Type, err)
		return false
	}
	if err := sock.Write(raw); err != nil {
		log.Warnf("channel write: %v", err)
		return false
	}
	return true
}

func (c *Channel) flush() {
	n := c.queue.Drain(c.writeNow)
	if n > 0 {
		log.Infof("flushed %d queued messages", n)
	}
}

func (c *Channel) readLoop(sock Socket, gen int) {
	for {
		raw, err := sock.Read()
		if err != nil {
			c.mu.Lock()
			if c.shutdown || gen != c.gen {
				c.mu.Unlock()
				return
			}
			sock.Close()
			c.sock = nil
			if errors.Is(err, ErrCleanClose) {
				c.state = StateClosed
				c.mu.Unlock()
				log.ChannelState("closed", 0, 0)
				c.notifyState(StateClosed)
				return
			}
			c.scheduleRetryLocked(err) // releases mu
			return
		}

		env, perr := parseEnvelope(raw)
		if perr != nil {
			// Malformed envelopes are discarded, never dispatched.
			log.Warnf("discarding malformed message: %v", perr)
			continue
		}
		c.registry.Dispatch(env)
	}
}

// caller holds mu; releases it
func (c *Channel) scheduleRetryLocked(cause error) {
	if c.attempts >= c.opts.RetryBudget {
		c.state = StateGaveUp
		fire := !c.gaveUpFired
		c.gaveUpFired = true
		cb := c.opts.OnGaveUp
		c.mu.Unlock()

		log.Errorf("channel gave up after %d attempts: %v", c.opts.RetryBudget, cause)
		c.notifyState(StateGaveUp)
		if fire && cb != nil {
			cb(fmt.Errorf("%w: %v", ErrChannelExhausted, cause))
		}
		return
	}

	attempt := c.attempts
	c.attempts++
	delay := c.backoffDelay(attempt)
	c.state = StateConnecting
	gen := c.gen
	c.retryTimer = time.AfterFunc(delay, func() { c.retryDial(gen) })
	c.mu.Unlock()

	log.ChannelState("reconnecting", attempt+1, delay)
	c.notifyState(StateConnecting)
}

func (c *Channel) retryDial(gen int) {
	c.mu.Lock()
	if c.shutdown || gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen = c.gen
	c.lastAttempt = time.Now()
	c.mu.Unlock()
	c.dial(gen)
}

// backoffDelay returns base*1.5^attempt stretched by up to 30% jitter, so
// clients that dropped together do not retry in lockstep.
func (c *Channel) backoffDelay(attempt int) time.Duration {
	d := float64(c.opts.BaseDelay) * math.Pow(1.5, float64(attempt))
	return time.Duration(d * (1 + 0.3*rand.Float64()))
}

// Shutdown closes the channel for good. No reconnect is attempted and
// queued messages stay queued.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	sock := c.sock
	c.sock = nil
	c.state = StateClosed
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	c.notifyState(StateClosed)
}

func (c *Channel) notifyState(s State) {
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
