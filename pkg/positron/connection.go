/*
Licensed to the Apache Software Foundation (ASF) under one
or more contributor license agreements.  See the NOTICE file
distributed with this work for additional information
regarding copyright ownership.  The ASF licenses this file
to you under the Apache License, Version 2.0 (the
"License"); you may not use this file except in compliance
with the License.  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing,
software distributed under the License is distributed on an
"AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
KIND, either express or implied.  See the License for the
specific language governing permissions and limitations
under the License.
*/

package positron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/lane"
	"github.com/positron-amqp/positron/pkg/telemetry"
)

// Product is sent as the "product" connection property.
const Product = "positron"

// State is the lifecycle state of a Connection.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
	// Failed is absorbing: the connection never opened, or could not connect.
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// transport is the slot for the engine connection handle.
type transport struct{ engine.Connection }

// Connection is an AMQP connection and the links opened on it.
//
// Handle, closed flag, state and link registry are only changed on the
// connection's lane.
type Connection struct {
	id        string
	client    *Client
	log       zerolog.Logger
	lane      *lane.Lane
	collector telemetry.Collector

	handle atomic.Pointer[transport]
	state  atomic.Int32
	closed atomic.Bool
	ended  bool
	// Close requests that arrive while a close is in progress.
	closeWaiters []func(error)

	links   sync.Mutex
	senders []*Sender
	recvs   []*Receiver

	listeners   sync.Mutex
	endHandler  func()
	closeListen func(*Connection)
}

func newConnection(client *Client) *Connection {
	id := uuid.NewString()
	log := client.log.With().Str("conn", id).Logger()
	return &Connection{
		id:        id,
		client:    client,
		log:       log,
		lane:      lane.New("conn-"+id, log),
		collector: client.collector,
	}
}

// ID uniquely identifies the connection within the process.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("state")
	}
}

// Client returns the client that opened the connection.
func (c *Connection) Client() *Client { return c.client }

func (c *Connection) String() string { return "positron:" + c.id }

func (c *Connection) connect(params engine.ConnectParams, done func(*Connection, error)) {
	c.log.Debug().Str("address", c.client.opts.Address()).Msg("connecting")
	c.client.engine.Connect(params, func(ec engine.Connection, err error) {
		c.lane.Run(func() { c.connected(ec, err, done) })
	})
}

// connected handles a transport connect result. The engine may report more
// than one; only the first successful handle is kept.
func (c *Connection) connected(ec engine.Connection, err error, done func(*Connection, error)) {
	host := c.client.opts.Host
	if err != nil {
		c.setState(Failed)
		c.collector.ConnectionFailed(host)
		c.log.Warn().Err(err).Msg("connect failed")
		done(nil, fmt.Errorf("connect %s: %w", c.client.opts.Address(), err))
		return
	}
	if !c.handle.CompareAndSwap(nil, &transport{ec}) {
		c.log.Warn().Msg("engine delivered a second transport, disconnecting it")
		ec.Disconnect()
		done(nil, ErrAlreadyConnected)
		return
	}
	opts := c.client.opts
	if opts.ContainerID != "" {
		ec.SetContainer(opts.ContainerID)
	}
	if opts.VirtualHost != "" {
		ec.SetHostname(opts.VirtualHost)
	}
	ec.SetProperties(map[amqp.Symbol]interface{}{"product": Product})
	ec.DisconnectHandler(func() {
		c.lane.Run(func() { c.onEnd("disconnect") })
	})
	ec.CloseHandler(func(err error) {
		c.lane.Run(func() { c.onRemoteClose(err) })
	})
	ec.OpenHandler(func(err error) {
		c.lane.Run(func() { c.opened(err, done) })
	})
	ec.Open()
}

func (c *Connection) opened(err error, done func(*Connection, error)) {
	if err != nil {
		c.closed.Store(true)
		c.setState(Failed)
		c.collector.ConnectionFailed(c.client.opts.Host)
		c.log.Warn().Err(err).Msg("open failed")
		if t := c.handle.Swap(nil); t != nil {
			t.Disconnect()
		}
		done(nil, err)
		return
	}
	c.client.register(c)
	c.closed.Store(false)
	c.setState(Open)
	c.collector.ConnectionOpened(c.client.opts.Host)
	c.log.Info().Str("address", c.client.opts.Address()).Msg("connection open")
	done(c, nil)
}

// onRemoteClose runs when the engine reports the connection closed while
// the lifecycle close handler is installed.
func (c *Connection) onRemoteClose(err error) {
	if err != nil {
		c.log.Warn().Err(err).Msg("connection closed by peer")
	}
	if c.handle.Load() != nil {
		c.listeners.Lock()
		listen := c.closeListen
		c.listeners.Unlock()
		if listen != nil {
			listen(c)
		}
	}
	c.release()
	c.onEnd("remote")
}

// release takes the handle out of its slot, closes it and disconnects it.
// The disconnect happens even if the close fails.
func (c *Connection) release() {
	t := c.handle.Swap(nil)
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close on release")
	}
	t.Disconnect()
}

// onEnd delivers the end notification at most once, and never after a
// local close.
func (c *Connection) onEnd(reason string) {
	c.finish(reason)
	c.listeners.Lock()
	h := c.endHandler
	c.endHandler = nil
	c.listeners.Unlock()
	if h != nil && !c.closed.Load() {
		c.log.Info().Str("reason", reason).Msg("connection ended")
		h()
	}
}

// finish moves an opened connection to Closed once.
func (c *Connection) finish(reason string) {
	if State(c.state.Load()) == Failed {
		return
	}
	c.setState(Closed)
	if c.ended {
		return
	}
	c.ended = true
	c.client.unregister(c)
	c.collector.ConnectionEnded(reason)
}

// EndHandler sets the function called once when the connection ends
// without a local Close, replacing any previous one.
func (c *Connection) EndHandler(f func()) *Connection {
	c.listeners.Lock()
	defer c.listeners.Unlock()
	c.endHandler = f
	return c
}

// CloseHandler sets the function called on the lane when the peer closes
// the connection.
func (c *Connection) CloseHandler(f func(*Connection)) *Connection {
	c.listeners.Lock()
	defer c.listeners.Unlock()
	c.closeListen = f
	return c
}

func isActive(s engine.EndpointState) bool { return s == engine.Active }

// Close closes every link, then the transport. It is idempotent: closing a
// connection that was never connected or is already closed succeeds at
// once. done may be nil.
func (c *Connection) Close(done func(error)) {
	c.lane.Inject(func() {
		complete := func(err error) {
			if done != nil {
				done(err)
			}
		}
		t := c.handle.Load()
		if t == nil || (c.closed.Load() && !isActive(t.LocalState()) && !isActive(t.RemoteState())) {
			complete(nil)
			return
		}
		if c.State() == Closing {
			c.closeWaiters = append(c.closeWaiters, complete)
			return
		}
		c.closed.Store(true)
		c.setState(Closing)
		c.closeWaiters = append(c.closeWaiters, complete)
		c.shutdown(t.Connection)
	})
}

// CloseWait closes the connection and waits for the result or for ctx. It
// must not be called from a callback running on the connection.
func (c *Connection) CloseWait(ctx context.Context) error {
	_, err := await(ctx, func(done func(struct{}, error)) error {
		c.Close(func(err error) { done(struct{}{}, err) })
		return nil
	})
	return err
}

func (c *Connection) register(l closer) {
	c.links.Lock()
	defer c.links.Unlock()
	switch l := l.(type) {
	case *Sender:
		c.senders = append(c.senders, l)
	case *Receiver:
		c.recvs = append(c.recvs, l)
	}
}

func (c *Connection) unregister(l closer) {
	c.links.Lock()
	defer c.links.Unlock()
	switch l := l.(type) {
	case *Sender:
		c.senders = remove(c.senders, l)
	case *Receiver:
		c.recvs = remove(c.recvs, l)
	}
}

func remove[T comparable](s []T, v T) []T {
	for i, x := range s {
		if x == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Senders returns the registered senders.
func (c *Connection) Senders() []*Sender {
	c.links.Lock()
	defer c.links.Unlock()
	return append([]*Sender(nil), c.senders...)
}

// Receivers returns the registered receivers.
func (c *Connection) Receivers() []*Receiver {
	c.links.Lock()
	defer c.links.Unlock()
	return append([]*Receiver(nil), c.recvs...)
}
