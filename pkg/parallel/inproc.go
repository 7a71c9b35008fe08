package parallel

import (
	"fmt"
	"sync"
)

// MessageHandler receives messages delivered over a session. Worker
// implements it; test coordinators implement it too.
type MessageHandler interface {
	HandleMessage(reply Session, msg Message)
}

// InProcNetwork is an in-process transport: every registered handler is
// addressable by name and sessions deliver messages directly. It backs the
// tests and single-machine runs; a wire transport implements the same Dialer
// and Session contracts elsewhere.
type InProcNetwork struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewInProcNetwork() *InProcNetwork {
	return &InProcNetwork{
		handlers: make(map[string]MessageHandler),
	}
}

// Register makes a handler reachable under the given address.
func (n *InProcNetwork) Register(addr string, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[addr] = h
}

// Unregister removes an address, making later dials fail.
func (n *InProcNetwork) Unregister(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, addr)
}

// DialerFor returns a Dialer whose sessions report the given address as
// their origin, so replies route back to the dialing handler.
func (n *InProcNetwork) DialerFor(origin string) Dialer {
	return &inProcDialer{network: n, origin: origin}
}

type inProcDialer struct {
	network *InProcNetwork
	origin  string
}

func (d *inProcDialer) Dial(addr string) (Session, error) {
	d.network.mu.RLock()
	target, ok := d.network.handlers[addr]
	d.network.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no handler registered at %s", addr)
	}
	return &inProcSession{network: d.network, target: target, origin: d.origin}, nil
}

// inProcSession delivers writes synchronously to the target handler.
// Delivery order within one session is therefore the write order, matching
// the per source-destination ordering guarantee of the exchange.
type inProcSession struct {
	network *InProcNetwork
	target  MessageHandler
	origin  string
	closed  bool
}

func (s *inProcSession) Write(m Message) error {
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.target.HandleMessage(s.replySession(), m)
	return nil
}

// replySession lets the receiving handler answer the dialing side, when the
// origin is itself registered.
func (s *inProcSession) replySession() Session {
	s.network.mu.RLock()
	origin, ok := s.network.handlers[s.origin]
	s.network.mu.RUnlock()

	if !ok {
		return nil
	}
	return &inProcSession{network: s.network, target: origin, origin: ""}
}

func (s *inProcSession) Close() error {
	s.closed = true
	return nil
}
