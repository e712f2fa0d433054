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

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// linkable reports whether links can be created now.
func (c *Connection) linkable() error {
	switch {
	case c.closed.Load():
		return ErrClosed
	case c.State() != Open:
		return ErrNotOpen
	}
	return nil
}

// CreateReceiver creates a receiver on address and calls done on the lane
// once it is attached or has failed. handler may be nil, see
// Receiver.Handler. opts nil means DefaultReceiverOptions.
//
// The address may only be empty for a dynamic receiver. Invalid options
// and a connection that is not open are reported as the returned error.
func (c *Connection) CreateReceiver(address string, opts *ReceiverOptions, handler func(*Delivery), done func(*Receiver, error)) error {
	if done == nil {
		return ErrNilCallback
	}
	if address == "" && (opts == nil || !opts.Dynamic) {
		return ErrAddressRequired
	}
	var rc receiverConfig
	if opts != nil {
		var err error
		if rc, err = opts.config(); err != nil {
			return err
		}
	}
	if err := c.linkable(); err != nil {
		return err
	}
	autoAck := DefaultReceiverOptions().AutoAcknowledgement
	var lo engine.LinkOptions
	if opts != nil {
		lo = engine.LinkOptions{LinkName: opts.LinkName, Dynamic: opts.Dynamic}
		autoAck = opts.AutoAcknowledgement
	}
	c.lane.Run(func() {
		t := c.handle.Load()
		if t == nil || c.closed.Load() {
			done(nil, ErrNotOpen)
			return
		}
		er := t.CreateReceiver(address, lo)
		durable := false
		if opts != nil {
			if rc.qos != nil {
				er.SetQoS(*rc.qos)
			}
			er.SetDesiredCapabilities(amqp.Symbols(opts.DesiredCapabilities))
			er.SetOfferedCapabilities(amqp.Symbols(opts.Capabilities))
			configureSource(er.Source(), opts.Durable, rc)
			durable = opts.Durable
		}
		r := newReceiver(c, er, durable, autoAck, handler)
		r.open(r, func(err error) {
			if err != nil {
				done(nil, err)
				return
			}
			done(r, nil)
		})
	})
	return nil
}

// configureSource applies the terminus settings. durable is applied last
// and overrides any explicit durability or expiry policy.
func configureSource(src *engine.Terminus, durable bool, rc receiverConfig) {
	if rc.durability != nil {
		src.Durability = *rc.durability
	}
	if rc.expiry != nil {
		src.Expiry = *rc.expiry
	}
	if durable {
		src.Expiry = engine.ExpireNever
		src.Durability = engine.DurabilityUnsettledState
	}
}

// CreateDynamicReceiver creates a receiver whose address is assigned by the
// peer, without a message handler.
func (c *Connection) CreateDynamicReceiver(done func(*Receiver, error)) error {
	opts := DefaultReceiverOptions()
	opts.Dynamic = true
	return c.CreateReceiver("", &opts, nil, done)
}

// CreateSender creates a sender on address and calls done on the lane once
// it is attached or has failed. opts nil means DefaultSenderOptions.
//
// The address may only be empty for a dynamic sender: ErrAddressRequired is
// returned before anything is created.
func (c *Connection) CreateSender(address string, opts *SenderOptions, done func(*Sender, error)) error {
	if address == "" && (opts == nil || !opts.Dynamic) {
		return ErrAddressRequired
	}
	return c.createSender(address, opts, false, done)
}

// CreateAnonymousSender creates a sender with no target address. Messages
// sent on it must carry their own To address.
func (c *Connection) CreateAnonymousSender(done func(*Sender, error)) error {
	return c.createSender("", nil, true, done)
}

func (c *Connection) createSender(address string, opts *SenderOptions, anonymous bool, done func(*Sender, error)) error {
	if done == nil {
		return ErrNilCallback
	}
	if err := c.linkable(); err != nil {
		return err
	}
	o := DefaultSenderOptions()
	if opts != nil {
		o = *opts
	}
	c.lane.Run(func() {
		t := c.handle.Load()
		if t == nil || c.closed.Load() {
			done(nil, ErrNotOpen)
			return
		}
		es := t.CreateSender(address, engine.LinkOptions{LinkName: o.LinkName, Dynamic: o.Dynamic})
		es.SetAutoDrained(o.AutoDrained)
		es.SetAutoSettle(o.AutoSettle)
		s := newSender(c, es, anonymous)
		s.open(s, func(err error) {
			if err != nil {
				done(nil, err)
				return
			}
			done(s, nil)
		})
	})
	return nil
}

// Sender creates a sender and waits for it to attach or for ctx.
func (c *Connection) Sender(ctx context.Context, address string, opts *SenderOptions) (*Sender, error) {
	return await(ctx, func(done func(*Sender, error)) error {
		return c.CreateSender(address, opts, done)
	})
}

// AnonymousSender creates an anonymous sender and waits for it to attach or for ctx.
func (c *Connection) AnonymousSender(ctx context.Context) (*Sender, error) {
	return await(ctx, c.CreateAnonymousSender)
}

// Receiver creates a receiver and waits for it to attach or for ctx.
func (c *Connection) Receiver(ctx context.Context, address string, opts *ReceiverOptions, handler func(*Delivery)) (*Receiver, error) {
	return await(ctx, func(done func(*Receiver, error)) error {
		return c.CreateReceiver(address, opts, handler, done)
	})
}
