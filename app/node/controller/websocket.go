package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wildcard = "*"

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Event  string `json:"event"`  // event type such as "report.verified", or "*" for all
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // event type, "subscribed", "unsubscribed", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

// clientSubscriptions tracks which event types a client wants.
type clientSubscriptions struct {
	events *xsync.Map[string, struct{}]
}

// NewClientSubscriptions creates a new clientSubscriptions tracker.
// Exported for testing.
func NewClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{events: xsync.NewMap[string, struct{}]()}
}

func (cs *clientSubscriptions) Subscribe(event string) {
	cs.events.Store(event, struct{}{})
}

func (cs *clientSubscriptions) Unsubscribe(event string) {
	cs.events.Delete(event)
}

// IsSubscribed checks if an event type is subscribed. Wildcard (*) matches all events.
func (cs *clientSubscriptions) IsSubscribed(event string) bool {
	if _, ok := cs.events.Load(wildcard); ok {
		return true
	}
	_, ok := cs.events.Load(event)
	return ok
}

func validEventFilter(event string) bool {
	switch event {
	case wildcard, research.EventRequestCreated, research.EventMethodologyCommitted,
		research.EventReportSubmitted, research.EventReportVerified:
		return true
	}
	return false
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams committed program events.
//
// Protocol:
// Client sends: {"action": "subscribe", "event": "report.verified"}
// Client sends: {"action": "subscribe", "event": "*"}
// Client sends: {"action": "unsubscribe", "event": "report.verified"}
//
// Server sends:
// - {"type": "report.verified", "payload": {"event": ..., "tx_id": ..., "timestamp": ..., "payload": {...}}}
// - {"type": "subscribed", "payload": {"event": "report.verified"}}
// - {"type": "unsubscribed", "payload": {"event": "report.verified"}}
// - {"type": "error", "payload": {"message": "..."}}
//
// All goroutines recover from panics and cancel the connection.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := NewClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var producers, writer sync.WaitGroup
	guard := func(wg *sync.WaitGroup, name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in "+name+" goroutine",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	guard(&producers, "Redis subscriber", func() { c.subscribeToRedis(ctx, send, subs) })
	guard(&producers, "ping ticker", func() { c.sendPings(ctx, conn) })
	guard(&writer, "message writer", func() { c.writeMessages(conn, send) })

	// blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send)

	// send is closed only once nothing can write to it
	cancel()
	producers.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis keeps a PSUBSCRIBE on research:* alive, reconnecting with exponential
// backoff, and forwards the events the client asked for.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	pattern := utils.AllEventsPattern()

	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		if ctx.Err() != nil {
			return
		}
		attemptNum++

		subscriptionErr := c.attemptRedisSubscription(ctx, pattern, send, subs, attemptNum)
		if ctx.Err() != nil {
			c.App.Logger.Debug("Redis subscription cancelled")
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(
	ctx context.Context,
	pattern string,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
	attemptNum int,
) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Debug("Subscribed to Redis pattern",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	if !trySend(ctx, send, ServerMessage{
		Type:    "info",
		Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attemptNum},
	}) {
		return ctx.Err()
	}

	return c.processRedisMessages(ctx, pubsub.Channel(), send, subs)
}

// processRedisMessages forwards messages until the channel closes (nil) or ctx ends.
func (c *Controller) processRedisMessages(
	ctx context.Context,
	ch <-chan *redis.Message,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			event := utils.ExtractEventFromChannel(msg.Channel)
			if event == "" {
				c.App.Logger.Warn("Unexpected channel", zap.String("channel", msg.Channel))
				continue
			}
			if !subs.IsSubscribed(event) {
				continue
			}

			var env research.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			if !trySend(ctx, send, ServerMessage{Type: env.Event, Payload: env}) {
				return ctx.Err()
			}
		}
	}
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	// random value between -jitterFactor and +jitterFactor
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

// sendPings sends periodic WebSocket ping frames; the client's pong resets the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			// keep draining so senders never block on a dead connection
			for range send {
			}
			return
		}
	}
}

// readClientMessages handles subscription requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	resetDeadline := func() error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) }
	if err := resetDeadline(); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error { return resetDeadline() })

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Error("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := resetDeadline(); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			return
		}

		if !trySend(ctx, send, handleClientMessage(subs, msg)) {
			return
		}
	}
}

// handleClientMessage applies msg to subs and returns the reply for the client.
func handleClientMessage(subs *clientSubscriptions, msg ClientMessage) ServerMessage {
	switch msg.Action {
	case "subscribe", "unsubscribe":
		if !validEventFilter(msg.Event) {
			return ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown event: " + msg.Event}}
		}
		if msg.Action == "subscribe" {
			subs.Subscribe(msg.Event)
			return ServerMessage{Type: "subscribed", Payload: map[string]string{"event": msg.Event}}
		}
		subs.Unsubscribe(msg.Event)
		return ServerMessage{Type: "unsubscribed", Payload: map[string]string{"event": msg.Event}}
	default:
		return ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
	}
}
