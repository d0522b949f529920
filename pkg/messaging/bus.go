package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/snapcrop/pkg/logging"
)

// Handler serves one request kind. A nil payload with a nil error is
// answered with an Ack.
type Handler func(ctx context.Context, msg Message, payload Payload) (Payload, error)

// Bus routes encoded messages between attached contexts. Contexts share
// nothing but the bytes passed through it.
type Bus struct {
	mu        sync.RWMutex
	endpoints map[ContextID]*Endpoint
	logger    *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Discard("bus")
	}
	return &Bus{
		endpoints: make(map[ContextID]*Endpoint),
		logger:    logger,
	}
}

// Attach registers a context whose requests are dispatched on loop.
func (b *Bus) Attach(id ContextID, loop *Loop) (*Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.endpoints[id]; exists {
		return nil, fmt.Errorf("context %q already attached", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		id:       id,
		bus:      b,
		loop:     loop,
		handlers: make(map[Kind]Handler),
		pending:  make(map[string]chan Message),
		ctx:      ctx,
		cancel:   cancel,
		logger:   b.logger.With(string(id)),
	}
	b.endpoints[id] = e
	return e, nil
}

// Attached reports whether a context is currently listening.
func (b *Bus) Attached(id ContextID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[id]
	return ok
}

func (b *Bus) detach(e *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoints[e.id] == e {
		delete(b.endpoints, e.id)
	}
}

// deliver hands the encoded message to the destination endpoint.
func (b *Bus) deliver(to ContextID, data []byte) error {
	b.mu.RLock()
	e, ok := b.endpoints[to]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReceiver, to)
	}
	return e.receive(data)
}

// Endpoint is one context's connection to the bus.
type Endpoint struct {
	id     ContextID
	bus    *Bus
	loop   *Loop
	logger *logging.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
	pending  map[string]chan Message
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the context ID.
func (e *Endpoint) ID() ContextID {
	return e.id
}

// Handle registers the handler for a request kind.
func (e *Endpoint) Handle(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// Send delivers p to another context and waits for its reply. Error
// replies are returned as *RemoteError. It must not be called from a
// handler running on the destination's loop.
func (e *Endpoint) Send(ctx context.Context, to ContextID, p Payload) (Message, Payload, error) {
	msg, err := NewMessage(e.id, p)
	if err != nil {
		return Message{}, nil, err
	}
	data, err := Encode(msg)
	if err != nil {
		return Message{}, nil, fmt.Errorf("failed to encode %s: %w", msg.Kind, err)
	}

	replyCh := make(chan Message, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Message{}, nil, ErrClosed
	}
	e.pending[msg.ID] = replyCh
	e.mu.Unlock()
	defer e.forget(msg.ID)

	if err := e.bus.deliver(to, data); err != nil {
		return Message{}, nil, fmt.Errorf("failed to deliver %s to %s: %w", msg.Kind, to, err)
	}

	select {
	case reply := <-replyCh:
		payload, err := reply.Unpack()
		if err != nil {
			return reply, nil, err
		}
		if errReply, ok := payload.(*ErrorReply); ok {
			return reply, nil, &RemoteError{Code: errReply.Code, Message: errReply.Message}
		}
		return reply, payload, nil
	case <-ctx.Done():
		return Message{}, nil, fmt.Errorf("waiting for reply to %s from %s: %w", msg.Kind, to, ctx.Err())
	case <-e.ctx.Done():
		return Message{}, nil, ErrClosed
	}
}

// Close detaches the endpoint. Pending Sends fail with ErrClosed and
// later messages to this context fail with ErrNoReceiver.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.bus.detach(e)
	e.cancel()
}

func (e *Endpoint) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}

// receive validates an incoming message at the context boundary. Replies
// resolve their waiting Send directly; requests run on the loop in
// arrival order.
func (e *Endpoint) receive(data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		e.logger.Warnf("rejected incoming message: %v", err)
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoReceiver, e.id)
	}
	if msg.IsReply() {
		ch, ok := e.pending[msg.ReplyTo]
		e.mu.Unlock()
		if !ok {
			e.logger.Debugf("dropping late %s reply to %s", msg.Kind, msg.ReplyTo)
			return nil
		}
		select {
		case ch <- msg:
		default:
			e.logger.Warnf("duplicate %s reply to %s ignored", msg.Kind, msg.ReplyTo)
		}
		return nil
	}
	handler, ok := e.handlers[msg.Kind]
	e.mu.Unlock()

	if !ok {
		e.logger.Warnf("no handler for %s from %s", msg.Kind, msg.From)
		e.reply(msg, ErrorReply{Code: CodeUnsupported, Message: fmt.Sprintf("%s is not handled by %s", msg.Kind, e.id)})
		return nil
	}

	if !e.loop.Post(func() { e.dispatch(msg, handler) }) {
		return fmt.Errorf("%w: %s loop stopped", ErrNoReceiver, e.id)
	}
	return nil
}

func (e *Endpoint) dispatch(msg Message, handler Handler) {
	payload, err := msg.Unpack()
	if err != nil {
		e.reply(msg, errorReplyFor(err))
		return
	}

	result, err := handler(e.ctx, msg, payload)
	switch {
	case err != nil:
		e.reply(msg, errorReplyFor(err))
	case result == nil:
		e.reply(msg, Ack{})
	default:
		e.reply(msg, result)
	}
}

func (e *Endpoint) reply(req Message, p Payload) {
	reply, err := NewReply(e.id, req, p)
	if err != nil {
		e.logger.Errorf("failed to build %s reply: %v", req.Kind, err)
		reply, err = NewReply(e.id, req, ErrorReply{Code: CodeInternal, Message: err.Error()})
		if err != nil {
			return
		}
	}
	data, err := Encode(reply)
	if err != nil {
		e.logger.Errorf("failed to encode %s reply: %v", req.Kind, err)
		return
	}
	if err := e.bus.deliver(req.From, data); err != nil && !errors.Is(err, ErrNoReceiver) {
		e.logger.Warnf("failed to deliver %s reply to %s: %v", req.Kind, req.From, err)
	}
}
