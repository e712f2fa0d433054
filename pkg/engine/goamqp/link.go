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

package goamqp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	azamqp "github.com/Azure/go-amqp"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/lane"
)

var linkCounter atomic.Uint64

// link implements engine.Sender and engine.Receiver over a go-amqp link.
type link struct {
	conn   *conn
	name   string
	sender bool
	io     *lane.Lane

	mu               sync.Mutex
	source, target   engine.Terminus
	offered, desired []amqp.Symbol
	openH, closeH    func(error)
	messageH         func(engine.Delivery)
	local, remote    engine.EndpointState
	qos              engine.QoS
	prefetch         int
	// go-amqp settles sent messages when the outcome arrives and answers
	// drain requests itself; these only record what was asked for.
	autoSettle  bool
	autoDrained bool
	azs              *azamqp.Sender
	azr              *azamqp.Receiver
	stop             context.CancelFunc
	receiving        sync.WaitGroup
}

func newLink(c *conn, sender bool, address string, opts engine.LinkOptions) *link {
	name := opts.LinkName
	if name == "" {
		name = "positron-" + strconv.FormatUint(linkCounter.Add(1), 10)
	}
	l := &link{conn: c, name: name, sender: sender, autoSettle: true, autoDrained: true}
	l.io = lane.New("link-"+name, c.log)
	t := engine.Terminus{Address: address, Dynamic: opts.Dynamic}
	if sender {
		l.target = t
	} else {
		l.source = t
	}
	return l
}

func (l *link) Name() string { return l.name }

func (l *link) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender {
		return l.target.Address
	}
	return l.source.Address
}

func (l *link) Source() *engine.Terminus { return &l.source }
func (l *link) Target() *engine.Terminus { return &l.target }

func (l *link) SetOfferedCapabilities(caps []amqp.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offered = caps
}

func (l *link) SetDesiredCapabilities(caps []amqp.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.desired = caps
}

func (l *link) OpenHandler(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openH = h
}

func (l *link) CloseHandler(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeH = h
}

func (l *link) MessageHandler(h func(engine.Delivery)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageH = h
}

func (l *link) SetQoS(q engine.QoS) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qos = q
}

func (l *link) SetPrefetch(credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefetch = credits
}

func (l *link) SetAutoSettle(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoSettle = b
}

func (l *link) SetAutoDrained(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoDrained = b
}

func (l *link) LocalState() engine.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.local
}

func (l *link) RemoteState() engine.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote
}

func (l *link) Open() {
	l.mu.Lock()
	l.local = engine.Active
	l.mu.Unlock()
	l.io.Inject(func() {
		err := l.attach(context.Background())
		l.mu.Lock()
		if err != nil {
			l.remote = engine.Closed
		} else {
			l.remote = engine.Active
		}
		h := l.openH
		l.mu.Unlock()
		if err != nil {
			l.conn.fail(err)
			err = convertError(err)
		}
		l.conn.events.Inject(func() {
			if h != nil {
				h(err)
			}
		})
		if err == nil && !l.sender {
			l.startReceiving()
		}
	})
}

func (l *link) attach(ctx context.Context) error {
	session := l.conn.sessionOrNil()
	if session == nil {
		return errNotOpen
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sender {
		if !l.autoSettle || !l.autoDrained {
			l.conn.log.Debug().Str("link", l.name).Bool("auto_settle", l.autoSettle).
				Bool("auto_drained", l.autoDrained).Msg("go-amqp always settles and drains senders itself")
		}
		mode := azamqp.SenderSettleModeUnsettled
		s, err := session.NewSender(ctx, l.target.Address, &azamqp.SenderOptions{
			Name:               l.name,
			DynamicAddress:     l.target.Dynamic,
			TargetDurability:   durability(l.target.Durability),
			TargetExpiryPolicy: expiryPolicy(l.target.Expiry),
			Capabilities:       symbolStrings(l.offered),
			TargetCapabilities: symbolStrings(l.desired),
			SettlementMode:     &mode,
		})
		if err != nil {
			return err
		}
		l.azs = s
		l.target.Address = s.Address()
		return nil
	}
	opts := &azamqp.ReceiverOptions{
		Name:               l.name,
		DynamicAddress:     l.source.Dynamic,
		SourceDurability:   durability(l.source.Durability),
		SourceExpiryPolicy: expiryPolicy(l.source.Expiry),
		Capabilities:       symbolStrings(l.offered),
		SourceCapabilities: symbolStrings(l.desired),
		Credit:             int32(l.prefetch),
	}
	if l.qos == engine.AtMostOnce {
		snd := azamqp.SenderSettleModeSettled
		opts.RequestedSenderSettleMode = &snd
	}
	r, err := session.NewReceiver(ctx, l.source.Address, opts)
	if err != nil {
		return err
	}
	l.azr = r
	l.source.Address = r.Address()
	return nil
}

func (l *link) startReceiving() {
	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.stop = cancel
	r := l.azr
	l.mu.Unlock()
	l.receiving.Add(1)
	go func() {
		defer l.receiving.Done()
		for {
			msg, err := r.Receive(ctx, nil)
			if err != nil {
				if ctx.Err() == nil {
					l.conn.fail(err)
					l.remoteDetached(err)
				}
				return
			}
			l.deliver(msg)
		}
	}()
}

// remoteDetached reports a link ended by the peer.
func (l *link) remoteDetached(err error) {
	var linkErr *azamqp.LinkError
	if !errors.As(err, &linkErr) {
		return
	}
	l.mu.Lock()
	l.remote = engine.Closed
	h := l.closeH
	l.mu.Unlock()
	l.conn.events.Inject(func() {
		if h != nil {
			h(convertError(err))
		}
	})
}

func (l *link) deliver(msg *azamqp.Message) {
	l.mu.Lock()
	h := l.messageH
	d := &delivery{link: l, az: msg, msg: fromAzure(msg), settled: l.qos == engine.AtMostOnce}
	l.mu.Unlock()
	l.conn.events.Inject(func() {
		if h != nil {
			h(d)
		} else {
			_ = d.Release()
		}
	})
}

func (l *link) Close() error { return l.end() }

// Detach ends the link like Close. go-amqp always detaches with closed set,
// so durable terminus state is governed by the terminus expiry policy.
func (l *link) Detach() error { return l.end() }

func (l *link) end() error {
	if l.conn.IsDisconnected() {
		return errNotOpen
	}
	l.mu.Lock()
	l.local = engine.Closed
	stop := l.stop
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
	l.io.Inject(func() {
		l.receiving.Wait()
		ctx := context.Background()
		l.mu.Lock()
		s, r := l.azs, l.azr
		l.mu.Unlock()
		var err error
		switch {
		case s != nil:
			err = s.Close(ctx)
		case r != nil:
			err = r.Close(ctx)
		}
		var linkErr *azamqp.LinkError
		if errors.As(err, &linkErr) && linkErr.RemoteErr == nil {
			err = nil
		}
		l.mu.Lock()
		l.remote = engine.Closed
		h := l.closeH
		l.mu.Unlock()
		l.conn.events.Inject(func() {
			if h != nil {
				h(convertError(err))
			}
		})
	})
	return nil
}

func (l *link) Send(m *amqp.Message, outcome func(error)) {
	msg := toAzure(m)
	l.io.Inject(func() {
		l.mu.Lock()
		s := l.azs
		l.mu.Unlock()
		err := errNotOpen
		if s != nil {
			err = s.Send(context.Background(), msg, nil)
		}
		if err != nil {
			l.conn.fail(err)
		}
		if outcome != nil {
			err = convertError(err)
			l.conn.events.Inject(func() { outcome(err) })
		}
	})
}

type delivery struct {
	link    *link
	az      *azamqp.Message
	msg     *amqp.Message
	settled bool
	once    sync.Once
}

func (d *delivery) Message() *amqp.Message { return d.msg }
func (d *delivery) Settled() bool          { return d.settled }

func (d *delivery) Accept() error {
	return d.settle(func(ctx context.Context, r *azamqp.Receiver) error { return r.AcceptMessage(ctx, d.az) })
}

func (d *delivery) Reject(err error) error {
	var e *azamqp.Error
	if err != nil {
		ae := amqp.MakeError(err)
		e = &azamqp.Error{Condition: azamqp.ErrCond(ae.Name), Description: ae.Description}
	}
	return d.settle(func(ctx context.Context, r *azamqp.Receiver) error { return r.RejectMessage(ctx, d.az, e) })
}

func (d *delivery) Release() error {
	return d.settle(func(ctx context.Context, r *azamqp.Receiver) error { return r.ReleaseMessage(ctx, d.az) })
}

// settle runs f on the link's lane; failures are logged, not returned.
func (d *delivery) settle(f func(context.Context, *azamqp.Receiver) error) error {
	if d.settled {
		return nil
	}
	d.once.Do(func() {
		l := d.link
		l.io.Inject(func() {
			l.mu.Lock()
			r := l.azr
			l.mu.Unlock()
			if r == nil {
				return
			}
			if err := f(context.Background(), r); err != nil {
				l.conn.log.Warn().Err(err).Str("link", l.name).Msg("settle failed")
			}
		})
	})
	return nil
}
