// ============================================================================
// stream/client.go - Persistent Helius logsSubscribe client
// ============================================================================
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"solana-pool-sentinel/internal/constants"
	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrAuthRejected means the endpoint refused our credentials. It is
// fatal: retrying with the same key cannot succeed.
var ErrAuthRejected = errors.New("websocket authentication rejected")

const (
	pingInterval     = 20 * time.Second
	readDeadline     = 60 * time.Second
	subscribeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

// EventHandler receives each detected pool creation. It may block;
// blocking propagates backpressure to the websocket reader.
type EventHandler func(models.PoolCreationEvent)

// Client maintains one live logsSubscribe subscription on the watched
// program and converts matching notifications into pool-creation
// events, in arrival order, at least once.
type Client struct {
	wsURL     string
	programID string
	logger    *logrus.Logger
	collector *telemetry.Collector
	backoff   *Backoff
	dialer    *websocket.Dialer

	// connection must stay up this long for the backoff to reset
	stableWindow time.Duration
}

// Config holds configuration for the stream client.
type Config struct {
	WSBaseURL string // e.g. wss://mainnet.helius-rpc.com
	APIKey    string
	ProgramID string
	Logger    *logrus.Logger
	Collector *telemetry.Collector
}

// NewClient creates a stream client. It does not connect.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = constants.RaydiumAMMProgram.String()
	}
	return &Client{
		wsURL:        fmt.Sprintf("%s/?api-key=%s", strings.TrimRight(cfg.WSBaseURL, "/"), cfg.APIKey),
		programID:    cfg.ProgramID,
		logger:       cfg.Logger,
		collector:    cfg.Collector,
		backoff:      NewBackoff(constants.ReconnectBaseDelay, constants.ReconnectMaxDelay),
		dialer:       websocket.DefaultDialer,
		stableWindow: constants.StableConnWindow,
	}
}

// Run connects and consumes notifications until ctx is done. Transport
// drops reconnect forever with backoff; only ErrAuthRejected (or ctx
// cancellation) ends the loop.
func (c *Client) Run(ctx context.Context, handler EventHandler) error {
	for {
		c.setState(telemetry.StreamConnecting)

		conn, err := c.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				c.setState(telemetry.StreamDisconnected)
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Warn("stream connect failed")
			if !c.sleep(ctx, c.backoff.Next()) {
				return nil
			}
			continue
		}

		c.setState(telemetry.StreamConnected)
		connectedAt := time.Now()

		err = c.consume(ctx, conn, handler)
		_ = conn.Close()
		c.setState(telemetry.StreamDisconnected)

		if ctx.Err() != nil {
			return nil
		}

		if time.Since(connectedAt) >= c.stableWindow {
			c.backoff.Reset()
		}
		if c.collector != nil {
			c.collector.Reconnect()
		}

		delay := c.backoff.Next()
		c.logger.WithFields(logrus.Fields{
			"error": err,
			"delay": delay,
		}).Warn("stream dropped, reconnecting")
		if !c.sleep(ctx, delay) {
			return nil
		}
	}
}

// connect dials, subscribes, and waits for subscription confirmation.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.wsURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	subscribeMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{
				"mentions": []string{c.programID},
			},
			map[string]interface{}{
				"commitment": "confirmed",
			},
		},
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	// The first frame must confirm the subscription.
	_ = conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	var ack subscribeAck
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe ack: %w", err)
	}
	if ack.Error != nil {
		_ = conn.Close()
		if ack.Error.Code == -32401 || strings.Contains(strings.ToLower(ack.Error.Message), "unauthorized") {
			return nil, fmt.Errorf("%w: %s", ErrAuthRejected, ack.Error.Message)
		}
		return nil, fmt.Errorf("subscribe rejected: %s", ack.Error.Message)
	}

	c.logger.WithField("program", c.programID).Info("subscribed to pool-creation logs")
	return conn, nil
}

// consume reads notifications until the connection or ctx dies.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn, handler EventHandler) error {
	// Closing the conn is the only way to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go c.keepAlive(done, conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		event, ok := parseNotification(raw)
		if !ok {
			continue
		}

		if c.collector != nil {
			c.collector.EventReceived()
		}
		c.logger.WithFields(logrus.Fields{
			"signature": event.Signature,
			"slot":      event.Slot,
		}).Info("new pool detected")

		handler(event)
	}
}

func (c *Client) keepAlive(done <-chan struct{}, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
	}
}

func (c *Client) setState(s telemetry.StreamState) {
	if c.collector != nil {
		c.collector.SetStreamState(s)
	}
}

// sleep waits for d or until ctx is done; reports whether to continue.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

type subscribeAck struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// parseNotification extracts a pool-creation event from a raw frame.
// Only successful transactions whose logs carry the Raydium pool
// initialization marker qualify.
func parseNotification(raw []byte) (models.PoolCreationEvent, bool) {
	var msg logsNotification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.PoolCreationEvent{}, false
	}
	if msg.Method != "logsNotification" {
		return models.PoolCreationEvent{}, false
	}
	v := msg.Params.Result.Value
	if v.Signature == "" || v.Err != nil {
		return models.PoolCreationEvent{}, false
	}

	for _, line := range v.Logs {
		if strings.Contains(line, constants.PoolInitLogMarker) {
			return models.PoolCreationEvent{
				Signature:  v.Signature,
				Slot:       msg.Params.Result.Context.Slot,
				DetectedAt: time.Now().UTC(),
			}, true
		}
	}
	return models.PoolCreationEvent{}, false
}
