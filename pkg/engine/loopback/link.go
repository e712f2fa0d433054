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
	"sync"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// Link is a loopback link handle. It implements both engine.Sender and
// engine.Receiver; which role it plays is fixed at creation.
type Link struct {
	conn    *Conn
	name    string
	sender  bool
	dynamic bool

	mu               sync.Mutex
	source, target   engine.Terminus
	offered, desired []amqp.Symbol
	openH, closeH    func(error)
	messageH         func(engine.Delivery)
	local, remote    engine.EndpointState
	qos              engine.QoS
	prefetch         int
	autoSettle       bool
	autoDrained      bool
	detached         bool
	closeCalls       int
}

func (l *Link) Name() string   { return l.name }
func (l *Link) IsSender() bool { return l.sender }

func (l *Link) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender {
		return l.target.Address
	}
	return l.source.Address
}

func (l *Link) setAddress(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender {
		l.target.Address = address
	} else {
		l.source.Address = address
	}
}

func (l *Link) Source() *engine.Terminus { return &l.source }
func (l *Link) Target() *engine.Terminus { return &l.target }

func (l *Link) SetOfferedCapabilities(caps []amqp.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offered = caps
}

func (l *Link) SetDesiredCapabilities(caps []amqp.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.desired = caps
}

func (l *Link) OfferedCapabilities() []amqp.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offered
}

func (l *Link) DesiredCapabilities() []amqp.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.desired
}

func (l *Link) OpenHandler(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openH = h
}

func (l *Link) CloseHandler(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeH = h
}

func (l *Link) MessageHandler(h func(engine.Delivery)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageH = h
}

func (l *Link) SetQoS(q engine.QoS) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qos = q
}

func (l *Link) QoS() engine.QoS {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.qos
}

func (l *Link) SetPrefetch(credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefetch = credits
}

func (l *Link) Prefetch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prefetch
}

func (l *Link) SetAutoSettle(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoSettle = b
}

func (l *Link) AutoSettle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoSettle
}

func (l *Link) SetAutoDrained(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoDrained = b
}

func (l *Link) AutoDrained() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoDrained
}

// Detached is true if the link was ended with Detach rather than Close.
func (l *Link) Detached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.detached
}

// CloseCount is the number of Close or Detach calls.
func (l *Link) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCalls
}

func (l *Link) LocalState() engine.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local
}

func (l *Link) RemoteState() engine.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote
}

func (l *Link) Open() {
	l.mu.Lock()
	l.local = engine.Active
	l.mu.Unlock()
	b := l.conn.broker
	b.record("link-open %s", l.name)
	l.conn.events.Inject(func() {
		err := error(nil)
		if l.conn.IsDisconnected() {
			err = errDisconnected
		} else {
			err = b.attach(l)
		}
		l.mu.Lock()
		if err != nil {
			l.remote = engine.Closed
		} else {
			l.remote = engine.Active
		}
		h := l.openH
		l.mu.Unlock()
		if h != nil {
			h(err)
		}
		if err == nil && !l.sender {
			b.dispatch(l.Address())
		}
	})
}

func (l *Link) Close() error  { return l.end(false) }
func (l *Link) Detach() error { return l.end(true) }

func (l *Link) end(detach bool) error {
	if l.conn.IsDisconnected() {
		return errDisconnected
	}
	l.mu.Lock()
	l.local = engine.Closed
	l.detached = detach
	l.closeCalls++
	l.mu.Unlock()

	b := l.conn.broker
	if detach {
		b.record("link-detach %s", l.name)
	} else {
		b.record("link-close %s", l.name)
	}
	b.unroute(l)
	b.completeClose(l.Address(), func(err error) {
		l.conn.events.Inject(func() {
			l.mu.Lock()
			l.remote = engine.Closed
			h := l.closeH
			l.mu.Unlock()
			if h != nil {
				h(err)
			}
		})
	})
	return nil
}

func (l *Link) Send(m *amqp.Message, outcome func(error)) {
	reply := func(err error) {
		if outcome != nil {
			l.conn.events.Inject(func() { outcome(err) })
		}
	}
	l.mu.Lock()
	open := l.local == engine.Active && l.remote == engine.Active
	address := l.target.Address
	l.mu.Unlock()
	if !open {
		reply(amqp.Errorf(amqp.IllegalState, "link %s is not open", l.name))
		return
	}
	if address == "" {
		address = m.To
	}
	if address == "" {
		reply(amqp.Errorf(amqp.NotAllowed, "anonymous sender requires message 'to' address"))
		return
	}
	l.conn.broker.publish(address, m, reply)
}

func (l *Link) deliver(env *envelope) {
	d := &delivery{msg: env.msg, reply: env.reply}
	if l.QoS() == engine.AtMostOnce {
		d.settled = true
		env.reply(nil)
	}
	l.conn.events.Inject(func() {
		l.mu.Lock()
		h := l.messageH
		l.mu.Unlock()
		if h != nil {
			h(d)
		} else {
			_ = d.Release()
		}
	})
}

type delivery struct {
	msg     *amqp.Message
	reply   func(error)
	settled bool
	once    sync.Once
}

func (d *delivery) Message() *amqp.Message { return d.msg }
func (d *delivery) Settled() bool          { return d.settled }

func (d *delivery) Accept() error { return d.settle(nil) }

func (d *delivery) Reject(err error) error {
	if err == nil {
		err = amqp.Errorf(amqp.InternalError, "rejected")
	}
	return d.settle(amqp.MakeError(err))
}

func (d *delivery) Release() error { return d.settle(ErrReleased) }

func (d *delivery) settle(err error) error {
	if d.settled {
		return nil
	}
	d.once.Do(func() { d.reply(err) })
	return nil
}
