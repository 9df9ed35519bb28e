package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gcodeview/pkg/log"
	"gcodeview/pkg/pool"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 20
)

// wsClient is one websocket connection. A read pump dispatches requests and
// a write pump owns every write to the connection.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed sync.Once
}

func (s *Server) newClient(conn *websocket.Conn) *wsClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsClient{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send queues msg, dropping it when the queue is full.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.ctx.Done():
	default:
		c.server.logger.WithField("client", c.id).Warn("dropping message, send queue full")
	}
}

// SendWait queues msg, blocking until there is room or the request or the
// connection ends.
func (c *wsClient) SendWait(ctx context.Context, msg any) error {
	select {
	case c.sendCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Close cancels running requests and closes the connection.
func (c *wsClient) Close() {
	c.closed.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
		c.wg.Wait()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.WithError(err).WithField("client", c.id).Warn("websocket read")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.write(msg); err != nil {
				c.server.logger.WithError(err).WithField("client", c.id).Warn("websocket write")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// write encodes msg into a pooled buffer; record batches can be large.
func (c *wsClient) write(msg any) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

// handleMessage answers a request. gcode.process runs on its own goroutine
// so pings and other requests keep flowing while a file is parsed.
func (c *wsClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, nil, &jsonRPCError{Code: rpcParseError, Message: "Parse error"})
		return
	}

	run := func() {
		defer func() {
			if r := recover(); r != nil {
				c.server.logger.WithFields(log.Fields{"client": c.id, "method": req.Method, "panic": r}).
					Error("request panicked")
				c.reply(req.ID, nil, &jsonRPCError{Code: rpcServerError, Message: fmt.Sprintf("internal error: %v", r)})
			}
		}()
		result, err := c.server.dispatch(c.ctx, c, &req)
		if err != nil {
			c.reply(req.ID, nil, rpcError(err))
			return
		}
		c.reply(req.ID, result, nil)
	}

	if req.Method == "gcode.process" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			run()
		}()
		return
	}
	run()
}

// reply queues a response. Responses wait for room rather than being
// dropped.
func (c *wsClient) reply(id, result any, rpcErr *jsonRPCError) {
	resp := jsonRPCResponse{JSONRPC: "2.0", Result: result, Error: rpcErr, ID: id}
	_ = c.SendWait(c.ctx, resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}

	c := s.newClient(conn)
	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()
	s.logger.WithFields(log.Fields{"client": c.id, "remote": r.RemoteAddr}).Debug("websocket connected")

	go c.writePump()
	c.Send(notification{JSONRPC: "2.0", Method: "notify_viewer_ready"})
	c.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	s.logger.WithField("client", c.id).Debug("websocket disconnected")
}
