package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/durapensa/ksi-go/pkg/ksi/daemon"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
)

// maxLineBytes bounds one request line.
const maxLineBytes = 1 << 20

// handlerFunc processes one administrative request on a connection.
type handlerFunc func(c *conn, data json.RawMessage) (map[string]any, error)

// Server accepts agent and observer connections and bridges them to
// the engine. It implements observe.Deliverer by pushing events to the
// connection registered under the observer's agent id.
type Server struct {
	engine   *daemon.Engine
	logger   *slog.Logger
	handlers map[string]handlerFunc

	listener net.Listener
	wg       sync.WaitGroup

	mu     sync.Mutex
	agents map[string]*conn
	conns  map[*conn]struct{}
	closed bool
}

// conn is one client connection. Writes are serialized so responses
// and pushed deliveries never interleave mid-line.
type conn struct {
	netConn net.Conn

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	agentID string
}

// New creates a server over an engine. Call Listen to start serving.
func New(engine *daemon.Engine, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		logger: logger,
		agents: make(map[string]*conn),
		conns:  make(map[*conn]struct{}),
	}
	s.handlers = map[string]handlerFunc{
		"system:register":         s.handleRegister,
		"system:health":           s.handleHealth,
		"observation:subscribe":   s.handleSubscribe,
		"observation:list":        s.handleList,
		"observation:unsubscribe": s.handleUnsubscribe,
		"observation:query":       s.handleQuery,
		"routing:add_rule":        s.handleAddRule,
		"routing:remove_rule":     s.handleRemoveRule,
		"routing:query_rules":     s.handleQueryRules,
		"checkpoint:create":       s.handleCheckpointCreate,
		"agent:terminated":        s.handleAgentTerminated,
	}
	return s
}

// Listen binds the address and serves until Close. Addresses are
// "tcp://host:port" or "unix:///path/to.sock"; a bare address is
// treated as TCP.
func (s *Server) Listen(addr string) error {
	network, address := splitAddr(addr)
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server closed")
	}
	s.listener = ln
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("listening", slog.String("address", ln.Addr().String()))
	}

	for {
		netConn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go s.serveConn(netConn)
	}
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func splitAddr(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://")
	default:
		return "tcp", addr
	}
}

// serveConn runs one connection's read loop.
func (s *Server) serveConn(netConn net.Conn) {
	defer s.wg.Done()

	c := &conn{netConn: netConn, enc: json.NewEncoder(netConn)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		netConn.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	defer s.dropConn(c)

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			c.write(errorResponse(fmt.Errorf("malformed request: %w", err)))
			continue
		}
		c.write(s.dispatch(c, req))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		if s.logger != nil {
			s.logger.Warn("connection read failed",
				slog.String("remote", netConn.RemoteAddr().String()),
				slog.String("error", err.Error()))
		}
	}
}

// dispatch routes one request to its handler, or treats it as an
// event emission when no handler owns the name.
func (s *Server) dispatch(c *conn, req Request) Response {
	if h, ok := s.handlers[req.Event]; ok {
		data, err := h(c, req.Data)
		if err != nil {
			return errorResponse(err)
		}
		return successResponse(data)
	}
	return s.emit(c, req)
}

// emit dispatches an unhandled request name as an event from the
// connection's registered agent.
func (s *Server) emit(c *conn, req Request) Response {
	if err := event.ValidateName(req.Event); err != nil {
		return errorResponse(err)
	}

	var data map[string]any
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return errorResponse(fmt.Errorf("malformed event data: %w", err))
		}
	}

	evt := event.New(req.Event, c.agent(), data)
	if err := s.engine.Emit(context.Background(), evt); err != nil {
		return errorResponse(err)
	}
	return successResponse(map[string]any{"event_id": evt.ID})
}

// Deliver implements observe.Deliverer by pushing the event to the
// observer's registered connection.
func (s *Server) Deliver(ctx context.Context, observerID string, evt event.Event) error {
	s.mu.Lock()
	c, ok := s.agents[observerID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("observer %s not connected", observerID)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.write(Push{Event: "observation:event", Data: evt})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropConn removes a closed connection and its agent binding.
func (s *Server) dropConn(c *conn) {
	c.netConn.Close()

	s.mu.Lock()
	delete(s.conns, c)
	if id := c.agent(); id != "" && s.agents[id] == c {
		delete(s.agents, id)
	}
	s.mu.Unlock()
}

// bindAgent associates a connection with an agent id, replacing any
// previous connection registered under the same id.
func (s *Server) bindAgent(c *conn, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := c.agent(); old != "" && s.agents[old] == c {
		delete(s.agents, old)
	}
	c.setAgent(agentID)
	s.agents[agentID] = c
}

// Close stops accepting, closes every connection, and waits for their
// read loops to finish.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.netConn.Close()
	}
	s.wg.Wait()
}

func (c *conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(v)
}

func (c *conn) agent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

func (c *conn) setAgent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = id
}
