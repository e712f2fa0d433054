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

package loopback

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/lane"
)

// Conn is a loopback connection handle. It implements engine.Connection.
type Conn struct {
	broker *Broker
	id     string
	params engine.ConnectParams
	events *lane.Lane
	tags   uint64

	mu              sync.Mutex
	container       string
	hostname        string
	properties      map[amqp.Symbol]interface{}
	openH, closeH   func(error)
	disconnectH     func()
	local, remote   engine.EndpointState
	disconnected    bool
	links           []*Link
	closeCalls      int
	disconnectCalls int
}

func newConn(b *Broker, params engine.ConnectParams) *Conn {
	id := uuid.NewString()
	return &Conn{
		broker: b,
		id:     id,
		params: params,
		events: lane.New("loopback-"+id, b.log),
	}
}

func (c *Conn) ID() string                   { return c.id }
func (c *Conn) Params() engine.ConnectParams { return c.params }
func (c *Conn) String() string               { return "loopback:" + c.id }

func (c *Conn) SetContainer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.container = id
}

func (c *Conn) SetHostname(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostname = name
}

func (c *Conn) SetProperties(props map[amqp.Symbol]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties = props
}

// Container, Hostname and Properties return the values set before Open.
func (c *Conn) Container() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.container
}

func (c *Conn) Hostname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostname
}

func (c *Conn) Properties() map[amqp.Symbol]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.properties
}

func (c *Conn) OpenHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openH = h
}

func (c *Conn) CloseHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeH = h
}

func (c *Conn) DisconnectHandler(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectH = h
}

func (c *Conn) Open() {
	c.mu.Lock()
	c.local = engine.Active
	c.mu.Unlock()
	err := c.broker.openError()
	c.broker.record("conn-open %s", c.id)
	c.events.Inject(func() {
		c.mu.Lock()
		if err != nil {
			c.remote = engine.Closed
		} else {
			c.remote = engine.Active
		}
		h := c.openH
		c.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}

func (c *Conn) Close() error {
	if err := c.broker.connCloseError(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return errDisconnected
	}
	c.local = engine.Closed
	c.closeCalls++
	links := c.links
	remoteClosed := c.remote == engine.Closed
	c.mu.Unlock()
	c.broker.record("conn-close %s", c.id)
	c.unrouteAll(links)
	if remoteClosed {
		// The peer already closed, there is no close to wait for.
		return nil
	}
	c.events.Inject(func() {
		c.mu.Lock()
		c.remote = engine.Closed
		h := c.closeH
		c.mu.Unlock()
		if h != nil {
			h(nil)
		}
	})
	return nil
}

func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.local, c.remote = engine.Closed, engine.Closed
	c.disconnectCalls++
	links := c.links
	c.mu.Unlock()
	c.broker.record("conn-disconnect %s", c.id)
	c.unrouteAll(links)
}

func (c *Conn) IsDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *Conn) LocalState() engine.EndpointState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Conn) RemoteState() engine.EndpointState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// CloseCount is the number of times Close succeeded.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// DisconnectCount is the number of times Disconnect was called.
func (c *Conn) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCalls
}

// Links returns every link created on this connection.
func (c *Conn) Links() []*Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Link(nil), c.links...)
}

// RemoteClose simulates the peer closing the connection with err.
func (c *Conn) RemoteClose(err error) {
	c.mu.Lock()
	c.remote = engine.Closed
	links := c.links
	c.mu.Unlock()
	c.broker.record("conn-remote-close %s", c.id)
	c.unrouteAll(links)
	c.events.Inject(func() {
		c.mu.Lock()
		h := c.closeH
		c.mu.Unlock()
		if h != nil {
			h(err)
		}
	})
}

// Drop simulates abrupt loss of the transport.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.disconnected = true
	c.local, c.remote = engine.Closed, engine.Closed
	links := c.links
	c.mu.Unlock()
	c.broker.record("conn-drop %s", c.id)
	c.unrouteAll(links)
	c.events.Inject(func() {
		c.mu.Lock()
		h := c.disconnectH
		c.mu.Unlock()
		if h != nil {
			h()
		}
	})
}

func (c *Conn) unrouteAll(links []*Link) {
	for _, l := range links {
		c.broker.unroute(l)
	}
}

func (c *Conn) nextLinkName() string {
	return c.id + "@" + strconv.FormatUint(atomic.AddUint64(&c.tags, 1), 32)
}

func (c *Conn) CreateSender(address string, opts engine.LinkOptions) engine.Sender {
	return c.newLink(true, address, opts)
}

func (c *Conn) CreateReceiver(address string, opts engine.LinkOptions) engine.Receiver {
	return c.newLink(false, address, opts)
}

func (c *Conn) newLink(sender bool, address string, opts engine.LinkOptions) *Link {
	l := &Link{conn: c, sender: sender, name: opts.LinkName, dynamic: opts.Dynamic}
	if l.name == "" {
		l.name = c.nextLinkName()
	}
	if sender {
		l.target = engine.Terminus{Address: address, Dynamic: opts.Dynamic}
	} else {
		l.source = engine.Terminus{Address: address, Dynamic: opts.Dynamic}
	}
	c.mu.Lock()
	c.links = append(c.links, l)
	c.mu.Unlock()
	return l
}
