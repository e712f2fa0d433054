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
	"sync/atomic"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// Receiver is a receiving link.
type Receiver struct {
	link
	er      engine.Receiver
	durable bool
	autoAck bool

	handler func(*Delivery)
	pending []*Delivery
}

func newReceiver(c *Connection, er engine.Receiver, durable, autoAck bool, handler func(*Delivery)) *Receiver {
	r := &Receiver{
		link:    newLink(c, "receiver", er),
		er:      er,
		durable: durable,
		autoAck: autoAck,
		handler: handler,
	}
	er.MessageHandler(func(d engine.Delivery) {
		c.lane.Run(func() { r.onDelivery(d) })
	})
	return r
}

// Address is the source address. For a dynamic receiver it is the address
// assigned by the peer.
func (r *Receiver) Address() string { return r.er.Address() }

// Durable reports whether the receiver detaches rather than closes.
func (r *Receiver) Durable() bool { return r.durable }

// Handler sets the message handler. Deliveries that arrived while there was
// no handler are passed to it first, in order.
func (r *Receiver) Handler(f func(*Delivery)) *Receiver {
	r.conn.lane.Run(func() {
		r.handler = f
		pending := r.pending
		r.pending = nil
		for _, d := range pending {
			r.dispatch(d)
		}
	})
	return r
}

func (r *Receiver) onDelivery(ed engine.Delivery) {
	d := &Delivery{d: ed}
	if ed.Settled() {
		d.settled.Store(true)
	}
	if r.handler == nil {
		r.pending = append(r.pending, d)
		return
	}
	r.dispatch(d)
}

func (r *Receiver) dispatch(d *Delivery) {
	r.handler(d)
	if r.autoAck && !d.Settled() {
		if err := d.Accept(); err != nil {
			r.log.Warn().Err(err).Msg("auto-accept")
		}
	}
}

// Close ends the link: a durable receiver detaches so the peer keeps its
// terminus, others close. Buffered deliveries are released. done may be nil.
func (r *Receiver) Close(done func(error)) {
	r.conn.lane.Run(func() {
		pending := r.pending
		r.pending = nil
		for _, d := range pending {
			_ = d.Release()
		}
	})
	r.close(r, r.durable, done)
}

// Delivery is a received message awaiting settlement.
type Delivery struct {
	d       engine.Delivery
	settled atomic.Bool
}

// Message is the received message.
func (d *Delivery) Message() *amqp.Message { return d.d.Message() }

// Settled is true once the delivery was accepted, rejected or released,
// or if it arrived pre-settled.
func (d *Delivery) Settled() bool { return d.settled.Load() }

// Accept settles the delivery as processed.
func (d *Delivery) Accept() error {
	return d.settle(d.d.Accept)
}

// Reject settles the delivery as invalid with reason err.
func (d *Delivery) Reject(err error) error {
	return d.settle(func() error { return d.d.Reject(err) })
}

// Release returns the delivery to the peer for redelivery.
func (d *Delivery) Release() error {
	return d.settle(d.d.Release)
}

func (d *Delivery) settle(f func() error) error {
	if !d.settled.CompareAndSwap(false, true) {
		return nil
	}
	return f()
}
