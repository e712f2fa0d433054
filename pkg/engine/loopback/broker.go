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

/*
Package loopback is an in-process engine.Client backed by an in-memory broker.

Messages sent to an address are queued on a node for that address and
delivered round-robin to the receivers attached to it. Dynamic links are
assigned a unique address. Events for a connection are delivered on that
connection's own lane, in order.

The Broker also exposes fault hooks (refused connects, rejected opens and
attaches, held or failing link closes, remote close and abrupt drop) and a
journal of engine operations so tests can check ordering.
*/
package loopback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// ErrReleased is the send outcome for a message the receiver released.
var ErrReleased = errors.New("loopback: message released")

var errDisconnected = errors.New("loopback: connection is disconnected")

type envelope struct {
	msg   *amqp.Message
	reply func(error)
}

type node struct {
	queue     []*envelope
	receivers []*Link
	next      int
}

// Broker is an in-memory message router. It implements engine.Client.
type Broker struct {
	log zerolog.Logger

	mu      sync.Mutex
	nodes   map[string]*node
	conns   []*Conn
	journal []string

	refuseConnect  error
	rejectOpen     error
	failConnClose  error
	rejectLink     map[string]error
	failLinkClose  map[string]error
	holdLinkCloses bool
	held           []func()
}

// NewBroker creates an empty broker.
func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{
		log:           log.With().Str("engine", "loopback").Logger(),
		nodes:         make(map[string]*node),
		rejectLink:    make(map[string]error),
		failLinkClose: make(map[string]error),
	}
}

// Connect implements engine.Client. done is called from a new goroutine.
func (b *Broker) Connect(params engine.ConnectParams, done func(engine.Connection, error)) {
	b.mu.Lock()
	err := b.refuseConnect
	b.mu.Unlock()
	go func() {
		if err != nil {
			done(nil, err)
			return
		}
		done(b.NewConn(params), nil)
	}()
}

// NewConn creates a connection handle directly, without Connect.
func (b *Broker) NewConn(params engine.ConnectParams) *Conn {
	c := newConn(b, params)
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()
	b.record("connect %s", c.id)
	return c
}

// Connections returns every connection created so far.
func (b *Broker) Connections() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Conn(nil), b.conns...)
}

// Journal returns the engine operations recorded so far, oldest first.
func (b *Broker) Journal() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.journal...)
}

// Depth is the number of messages queued at address.
func (b *Broker) Depth(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.nodes[address]; n != nil {
		return len(n.queue)
	}
	return 0
}

// SetRefuseConnect makes Connect fail with err. nil restores normal behaviour.
func (b *Broker) SetRefuseConnect(err error) { b.set(&b.refuseConnect, err) }

// SetRejectOpen makes the peer refuse connection opens with err.
func (b *Broker) SetRejectOpen(err error) { b.set(&b.rejectOpen, err) }

// SetFailConnClose makes Conn.Close fail synchronously with err.
func (b *Broker) SetFailConnClose(err error) { b.set(&b.failConnClose, err) }

func (b *Broker) set(field *error, err error) {
	b.mu.Lock()
	*field = err
	b.mu.Unlock()
}

// SetRejectLink makes the peer refuse attaches to address with err.
func (b *Broker) SetRejectLink(address string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectLink[address] = err
}

// SetFailLinkClose makes close or detach of links on address complete with err.
func (b *Broker) SetFailLinkClose(address string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLinkClose[address] = err
}

// HoldLinkCloses parks link close completions until ReleaseLinkCloses.
func (b *Broker) HoldLinkCloses() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdLinkCloses = true
}

// HeldLinkCloses is the number of parked link close completions.
func (b *Broker) HeldLinkCloses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}

// ReleaseLinkCloses completes parked link closes and stops holding new ones.
func (b *Broker) ReleaseLinkCloses() {
	b.mu.Lock()
	held := b.held
	b.held = nil
	b.holdLinkCloses = false
	b.mu.Unlock()
	for _, f := range held {
		f()
	}
}

func (b *Broker) record(format string, args ...interface{}) {
	entry := fmt.Sprintf(format, args...)
	b.mu.Lock()
	b.journal = append(b.journal, entry)
	b.mu.Unlock()
	b.log.Debug().Msg(entry)
}

func (b *Broker) openError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejectOpen
}

func (b *Broker) connCloseError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failConnClose
}

func (b *Broker) node(address string) *node {
	n := b.nodes[address]
	if n == nil {
		n = &node{}
		b.nodes[address] = n
	}
	return n
}

// attach routes an opening link. Called on the link's connection lane.
func (b *Broker) attach(l *Link) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	address := l.Address()
	if err := b.rejectLink[address]; err != nil {
		return err
	}
	if l.dynamic && address == "" {
		address = "dynamic-" + uuid.NewString()
		l.setAddress(address)
	}
	if !l.sender {
		n := b.node(address)
		n.receivers = append(n.receivers, l)
	}
	return nil
}

// unroute stops deliveries to l.
func (b *Broker) unroute(l *Link) {
	if l.sender {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.nodes[l.Address()]
	if n == nil {
		return
	}
	for i, r := range n.receivers {
		if r == l {
			n.receivers = append(n.receivers[:i], n.receivers[i+1:]...)
			break
		}
	}
}

// completeClose runs or parks a link close completion, returning the close
// error configured for address.
func (b *Broker) completeClose(address string, complete func(error)) {
	b.mu.Lock()
	err := b.failLinkClose[address]
	if b.holdLinkCloses {
		b.held = append(b.held, func() { complete(err) })
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	complete(err)
}

func (b *Broker) publish(address string, m *amqp.Message, reply func(error)) {
	cp := *m
	b.mu.Lock()
	n := b.node(address)
	n.queue = append(n.queue, &envelope{msg: &cp, reply: reply})
	b.mu.Unlock()
	b.dispatch(address)
}

func (b *Broker) dispatch(address string) {
	for {
		b.mu.Lock()
		n := b.nodes[address]
		if n == nil || len(n.queue) == 0 || len(n.receivers) == 0 {
			b.mu.Unlock()
			return
		}
		env := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		r := n.receivers[n.next%len(n.receivers)]
		n.next++
		b.mu.Unlock()
		r.deliver(env)
	}
}
