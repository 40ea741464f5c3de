package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rag-chat/internal/infra/logging"
	"rag-chat/internal/infra/metrics"
	"rag-chat/internal/usecase"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 64 << 10
	wsPendingQueries = 4
)

type wsRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type wsSessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Created   bool   `json:"created"`
}

type wsErrorEvent struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// wsConn serializes writes through one pump goroutine, as gorilla allows
// a single concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	log  *zerolog.Logger
	// queries dropped by the read pump, reported between exchanges
	dropped atomic.Int32
}

// serveWS upgrades the connection and runs queries one after another.
// Queries that arrive while one is streaming wait in a small queue.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	// the server stops watching a hijacked connection, so the read pump
	// owns cancellation
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	log := logging.With(ctx, s.log)
	c := &wsConn{conn: conn, send: make(chan []byte, 16), log: log}
	queries := make(chan []byte, wsPendingQueries)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()
	go c.readPump(ctx, cancel, queries)

	clientKey := ClientKey(r)
	for raw := range queries {
		s.serveWSQuery(ctx, c, clientKey, raw)
		c.reportDropped(ctx)
	}
	cancel()
	<-writerDone
	_ = conn.Close()
}

func (s *Server) serveWSQuery(ctx context.Context, c *wsConn, clientKey string, raw []byte) {
	var req wsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.enqueueJSON(ctx, wsErrorEvent{Type: "error", Code: http.StatusBadRequest, Message: "invalid JSON message"})
		return
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "ws", clientKey)
		if err != nil {
			c.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.IncRateLimited("ws")
			c.enqueueJSON(ctx, wsErrorEvent{Type: "error", Code: http.StatusTooManyRequests, Message: "rate limit exceeded"})
			return
		}
	}

	ex, err := s.rag.Ask(ctx, usecase.AskRequest{
		Query:     req.Query,
		SessionID: strings.TrimSpace(req.SessionID),
		Transport: "ws",
	})
	if err != nil {
		code, msg := statusFor(err)
		c.enqueueJSON(ctx, wsErrorEvent{Type: "error", Code: code, Message: msg})
		return
	}

	c.enqueueJSON(ctx, wsSessionEvent{Type: "session", SessionID: ex.SessionID, Created: ex.Created})
	for ev := range ex.Events {
		// a failed enqueue means the connection is closing; keep draining
		c.enqueueJSON(ctx, ev)
	}
}

// reportDropped sends one 429 frame per query that overflowed the pending
// queue. It runs after an exchange's done frame, so error frames never
// interleave with the tokens of a running exchange.
func (c *wsConn) reportDropped(ctx context.Context) {
	for n := c.dropped.Swap(0); n > 0; n-- {
		c.enqueueJSON(ctx, wsErrorEvent{Type: "error", Code: http.StatusTooManyRequests, Message: "too many pending queries"})
	}
}

func (c *wsConn) enqueueJSON(ctx context.Context, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal websocket event")
		return false
	}
	select {
	case c.send <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// readPump hands text frames to queries until the peer goes away, then
// cancels ctx and closes queries.
func (c *wsConn) readPump(ctx context.Context, cancel context.CancelFunc, queries chan<- []byte) {
	defer close(queries)
	defer cancel()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		select {
		case queries <- msg:
		case <-ctx.Done():
			return
		default:
			c.dropped.Add(1)
		}
	}
}

func (c *wsConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
