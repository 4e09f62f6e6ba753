package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// ErrGaveUp is returned by Client.Run once every reconnect attempt failed.
var ErrGaveUp = errors.NewStd("realtime client gave up reconnecting")

// ClientConfig tunes the reconnecting client.
type ClientConfig struct {
	URL    string
	Header http.Header
	// ReconnectDelay is multiplied by the attempt number before each retry.
	ReconnectDelay time.Duration
	MaxAttempts    int
	// PingInterval controls application level pings. Zero disables them.
	PingInterval time.Duration
	// Channels are subscribed to after every successful connect.
	Channels []string
}

// Handler receives every decoded server message.
type Handler func(msg *Message)

// Client keeps one connection to the relay open and reconnects with a
// linear backoff when it drops.
type Client struct {
	cfg     ClientConfig
	dialer  *websocket.Dialer
	handler Handler
	wait    func(ctx context.Context, d time.Duration) error
	log     logger.Logger
}

// NewClient creates a Client. handler may be nil.
func NewClient(cfg ClientConfig, handler Handler, log logger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if handler == nil {
		handler = func(*Message) {}
	}
	return &Client{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		handler: handler,
		wait:    sleepCtx,
		log:     log.Module("realtime-client"),
	}
}

// Backoff returns the delay before reconnect attempt n (1-based).
func (c *Client) Backoff(attempt int) time.Duration {
	return c.cfg.ReconnectDelay * time.Duration(attempt)
}

// Run connects and reads until ctx is done or reconnecting fails
// MaxAttempts times in a row. It returns nil when ctx ends the run.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err == nil {
			attempt = 0
			c.log.Info("connected to realtime relay", logger.String("url", c.cfg.URL))
			err = c.serve(ctx, ws)
		}
		if ctx.Err() != nil {
			return nil
		}

		if attempt >= c.cfg.MaxAttempts {
			c.log.Warn("giving up on realtime relay",
				logger.Int("attempts", attempt),
				logger.Error(err))
			return ErrGaveUp
		}
		attempt++
		delay := c.Backoff(attempt)
		c.log.Info("realtime connection lost, reconnecting",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.cfg.MaxAttempts),
			logger.Duration("delay", delay),
			logger.Error(err))
		if err := c.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// serve reads messages until the connection fails or ctx is done.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return ws.WriteJSON(v)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = ws.Close()
	}()

	for _, ch := range c.cfg.Channels {
		if err := write(inbound{Type: TypeSubscribe, Channel: ch}); err != nil {
			return err
		}
	}

	if c.cfg.PingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.cfg.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := write(inbound{Type: TypePing}); err != nil {
						cancel()
						return
					}
				}
			}
		}()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("ignoring malformed relay message", logger.Error(err))
			continue
		}
		c.handler(&msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
