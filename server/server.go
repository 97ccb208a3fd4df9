// Package server implements the JSON-RPC 2.0 server: method registration,
// frame validation and dispatch against the registered table, and the
// stream/HTTP/WebSocket transport adapters that feed it.
//
// Request processing pipeline, matching the teacher's server.go shape:
//
//	Accept conn → handleStreamConn (single goroutine reads frames)
//	  → for each frame: go dispatch (parallel processing)
//	    → codec.Decode → validate → method lookup → Handler → codec.Encode → write response
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"jaysonic/codec"
	"jaysonic/config"
	"jaysonic/logging"
	"jaysonic/middleware"
	"jaysonic/registry"
)

// dispatchInput is what flows through the method-dispatch middleware chain:
// the resolved handler plus enough context for logging/rate-limit/timeout
// layers to act on, without any of them needing to know about message.Request.
type dispatchInput struct {
	method  string
	handler Handler
	params  json.RawMessage
}

type listenState int32

const (
	stateStopped listenState = iota
	stateStarting
	stateListening
	stateStopping
)

// ErrAlreadyListening is returned by Listen* when the server is already
// Listening or mid-transition; listen is not re-entrant (spec §4.7).
var ErrAlreadyListening = fmt.Errorf("jaysonic: server is already listening")

// clientConn is the minimal shape a stream or WebSocket connection must
// offer for broadcast Notify and the clientConnected/clientDisconnected
// events. HTTP has no persistent connection and never appears here.
type clientConn interface {
	writeFrame(frame []byte) error
	close() error
}

// Server registers methods and dispatches incoming requests against them.
// Listen is not re-entrant (spec §4.7): ListenStream/ListenHTTP/ListenWS
// each drive the same Stopped→Starting→Listening→Stopping→Stopped state,
// so only one of them may be active at a time per Server. Close it and
// call a different Listen* to switch transports.
type Server struct {
	cfg    config.ServerConfig
	codec  *codec.Codec
	logger zerolog.Logger
	chain  middleware.HandlerFunc[dispatchInput, json.RawMessage]

	methodsMu sync.RWMutex
	methods   map[string]Handler

	state atomic.Int32

	clientsMu    sync.Mutex
	clients      map[uint64]clientConn
	nextClientID uint64

	eventsMu               sync.Mutex
	onNotifyCbs            []func(method string, params json.RawMessage)
	clientConnectedCbs     []func(id uint64)
	clientDisconnectedCbs  []func(id uint64)
	errorCbs               []func(error)

	listener net.Listener
}

// New creates a Server from cfg. A zero-value config.ServerConfig is valid —
// use config.DefaultServerConfig() to get the documented defaults.
func New(cfg config.ServerConfig) *Server {
	s := &Server{
		cfg:     cfg,
		codec:   codec.New(cfg.Version),
		logger:  logging.New("server"),
		methods: make(map[string]Handler),
		clients: make(map[uint64]clientConn),
	}
	s.buildChain()
	return s
}

// SetLogger overrides the default logger built from logging.New and rebuilds
// the dispatch chain's Logging layer around it.
func (s *Server) SetLogger(logger zerolog.Logger) {
	s.logger = logger
	s.buildChain()
}

// buildChain assembles the method-dispatch middleware pipeline: logging is
// always present, rate limiting and a per-call timeout are opt-in via
// config.ServerConfig. Order matters — logging wraps outermost so it
// observes the final outcome after rate limiting and timeout have run.
func (s *Server) buildChain() {
	base := middleware.HandlerFunc[dispatchInput, json.RawMessage](func(ctx context.Context, in dispatchInput) (json.RawMessage, error) {
		return s.invoke(in.handler, in.params)
	})

	mws := []middleware.Middleware[dispatchInput, json.RawMessage]{
		middleware.Logging[dispatchInput, json.RawMessage](&s.logger, func(in dispatchInput) string { return in.method }),
	}
	if s.cfg.RateLimit != nil && s.cfg.RateLimit.Rate > 0 {
		mws = append(mws, middleware.RateLimit[dispatchInput, json.RawMessage](s.cfg.RateLimit.Rate, s.cfg.RateLimit.Burst))
	}
	if s.cfg.DispatchTimeoutSeconds > 0 {
		timeout := time.Duration(s.cfg.DispatchTimeoutSeconds * float64(time.Second))
		mws = append(mws, middleware.Timeout[dispatchInput, json.RawMessage](timeout))
	}

	s.chain = middleware.Chain(mws...)(base)
}

// Method registers a handler for name. Registration is only safe before the
// server starts listening — concurrent Method calls during dispatch are not
// supported, matching spec §5's "method registry is written only during
// setup."
func (s *Server) Method(name string, handler Handler) {
	s.methodsMu.Lock()
	defer s.methodsMu.Unlock()
	s.methods[name] = handler
}

func (s *Server) lookup(name string) (Handler, bool) {
	s.methodsMu.RLock()
	defer s.methodsMu.RUnlock()
	h, ok := s.methods[name]
	return h, ok
}

// MethodNames returns every currently registered method name, for
// advertising this instance's capabilities to a service registry.
func (s *Server) MethodNames() []string {
	s.methodsMu.RLock()
	defer s.methodsMu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

// Advertise registers this instance with reg under serviceName, attaching
// its current MethodNames so a discovery-mode client (or a registry-aware
// balancer) can tell compatible instances apart from ones that haven't
// registered the method it needs. ttl is the lease lifetime in seconds;
// the caller is responsible for calling reg.Deregister(serviceName, addr)
// on shutdown.
func (s *Server) Advertise(reg registry.Registry, serviceName, addr string, weight int, ttl int64) error {
	return reg.Register(serviceName, registry.ServiceInstance{
		Addr:    addr,
		Weight:  weight,
		Version: s.cfg.Version,
		Methods: s.MethodNames(),
	}, ttl)
}

// Close tears down every listener the server owns and marks it Stopped.
// Listen is not re-entrant; a fresh Listen* call after Close is fine.
func (s *Server) Close() error {
	s.state.Store(int32(stateStopping))
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[uint64]clientConn)
	s.clientsMu.Unlock()
	for _, c := range clients {
		c.close()
	}

	s.state.Store(int32(stateStopped))
	return err
}

func (s *Server) transitionToStarting() error {
	if !s.state.CompareAndSwap(int32(stateStopped), int32(stateStarting)) {
		return ErrAlreadyListening
	}
	return nil
}

func (s *Server) transitionToListening() {
	s.state.Store(int32(stateListening))
}

func (s *Server) transitionToStopped() {
	s.state.Store(int32(stateStopped))
}

func (s *Server) addClient(c clientConn) uint64 {
	s.clientsMu.Lock()
	s.nextClientID++
	id := s.nextClientID
	s.clients[id] = c
	s.clientsMu.Unlock()

	s.eventsMu.Lock()
	cbs := append([]func(uint64){}, s.clientConnectedCbs...)
	s.eventsMu.Unlock()
	for _, cb := range cbs {
		cb(id)
	}
	return id
}

func (s *Server) removeClient(id uint64) {
	s.clientsMu.Lock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	s.clientsMu.Unlock()
	if !ok {
		return
	}

	s.eventsMu.Lock()
	cbs := append([]func(uint64){}, s.clientDisconnectedCbs...)
	s.eventsMu.Unlock()
	for _, cb := range cbs {
		cb(id)
	}
}
