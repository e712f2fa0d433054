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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/engine/loopback"
	"github.com/positron-amqp/positron/pkg/internal/test"
)

func onlyLink(t *testing.T, lc *loopback.Conn) *loopback.Link {
	t.Helper()
	links := lc.Links()
	require.Len(t, links, 1)
	return links[0]
}

func TestDurableOverridesTerminusSettings(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)

	r, err := conn.Receiver(timeout(t), "topic", &ReceiverOptions{
		LinkName:             "subscription",
		Durable:              true,
		TerminusDurability:   "NONE",
		TerminusExpiryPolicy: "LINK_DETACH",
	}, func(*Delivery) {})
	require.NoError(t, err)
	assert.True(t, r.Durable())

	l := onlyLink(t, lc)
	assert.Equal(t, "subscription", l.Name())
	assert.Equal(t, engine.DurabilityUnsettledState, l.Source().Durability)
	assert.Equal(t, engine.ExpireNever, l.Source().Expiry)

	// Durable receivers detach.
	require.NoError(t, closeLink(t, r.Close))
	assert.True(t, l.Detached())
	assert.Contains(t, f.broker.Journal(), "link-detach subscription")
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestExplicitTerminusSettings(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)

	r, err := conn.Receiver(timeout(t), "queue", &ReceiverOptions{
		QoS:                  "at_most_once",
		Capabilities:         []string{"queue"},
		DesiredCapabilities:  []string{"shared", "global"},
		TerminusDurability:   "configuration",
		TerminusExpiryPolicy: "SESSION_END",
	}, nil)
	require.NoError(t, err)
	assert.False(t, r.Durable())

	l := onlyLink(t, lc)
	assert.Equal(t, engine.DurabilityConfiguration, l.Source().Durability)
	assert.Equal(t, engine.ExpireWithSession, l.Source().Expiry)
	assert.Equal(t, engine.AtMostOnce, l.QoS())
	assert.Equal(t, []amqp.Symbol{"queue"}, l.OfferedCapabilities())
	assert.Equal(t, []amqp.Symbol{"shared", "global"}, l.DesiredCapabilities())

	require.NoError(t, closeLink(t, r.Close))
	assert.False(t, l.Detached())
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestReceiverWithoutOptionsKeepsEngineDefaults(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)
	_, err := conn.Receiver(timeout(t), "queue", nil, nil)
	require.NoError(t, err)

	l := onlyLink(t, lc)
	assert.Equal(t, engine.Terminus{Address: "queue"}, *l.Source())
	assert.Nil(t, l.OfferedCapabilities())
	assert.Nil(t, l.DesiredCapabilities())
	assert.Equal(t, engine.AtLeastOnce, l.QoS())
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestInvalidReceiverOptions(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)
	done := test.NewCallback[*Receiver](1)

	for _, opts := range []ReceiverOptions{
		{QoS: "exactly_once"},
		{TerminusDurability: "forever"},
		{TerminusExpiryPolicy: "WHENEVER"},
	} {
		assert.Error(t, conn.CreateReceiver("queue", &opts, nil, done.Func), "%+v", opts)
	}
	assert.ErrorIs(t, conn.CreateReceiver("", nil, nil, done.Func), ErrAddressRequired)
	assert.ErrorIs(t, conn.CreateReceiver("queue", nil, nil, nil), ErrNilCallback)
	done.None(t, quiet)
	assert.Empty(t, lc.Links())
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestCreateSenderRequiresAddress(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)
	done := test.NewCallback[*Sender](1)

	assert.ErrorIs(t, conn.CreateSender("", &SenderOptions{Dynamic: false}, done.Func), ErrAddressRequired)
	assert.ErrorIs(t, conn.CreateSender("", nil, done.Func), ErrAddressRequired)
	done.None(t, quiet)
	assert.Empty(t, lc.Links())
	assert.Empty(t, journalIndex(f.broker.Journal(), "link-"))

	assert.ErrorIs(t, conn.CreateSender("queue", nil, nil), ErrNilCallback)
	assert.ErrorIs(t, conn.CreateAnonymousSender(nil), ErrNilCallback)
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestSenderOptions(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)

	_, err := conn.Sender(timeout(t), "queue", nil)
	require.NoError(t, err)
	l := lc.Links()[0]
	assert.True(t, l.AutoSettle())
	assert.True(t, l.AutoDrained())
	assert.True(t, l.IsSender())

	s, err := conn.Sender(timeout(t), "", &SenderOptions{LinkName: "replies", Dynamic: true})
	require.NoError(t, err)
	l = lc.Links()[1]
	assert.Equal(t, "replies", s.Name())
	assert.False(t, l.AutoSettle())
	assert.False(t, l.AutoDrained())
	assert.True(t, l.Target().Dynamic)
	assert.Regexp(t, "^dynamic-", s.Address())
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestLinksRequireOpenConnection(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	require.NoError(t, conn.CloseWait(timeout(t)))

	assert.ErrorIs(t, conn.CreateSender("queue", nil, func(*Sender, error) {}), ErrClosed)
	assert.ErrorIs(t, conn.CreateAnonymousSender(func(*Sender, error) {}), ErrClosed)
	assert.ErrorIs(t, conn.CreateDynamicReceiver(func(*Receiver, error) {}), ErrClosed)

	unopened := newConnection(f.client)
	assert.ErrorIs(t, unopened.CreateSender("queue", nil, func(*Sender, error) {}), ErrNotOpen)
}

func TestLinkAttachRejected(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	f.broker.SetRejectLink("secret", amqp.Errorf(amqp.UnauthorizedAccess, "no"))

	_, err := conn.Sender(timeout(t), "secret", nil)
	require.Error(t, err)
	assert.Equal(t, amqp.UnauthorizedAccess, amqp.MakeError(err).Name)
	assert.Empty(t, conn.Senders())
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestAttachRejectedWhileClosing(t *testing.T) {
	f := newFixture(t)
	conn, lc := f.connect(t)
	f.broker.SetRejectLink("q", amqp.Errorf(amqp.NotFound, "no such node"))

	created := test.NewCallback[*Sender](1)
	closed := test.NewDone(1)
	conn.lane.Inject(func() {
		// The sender is registered but not attached when the close
		// snapshots the links.
		if err := conn.CreateSender("q", nil, created.Func); err != nil {
			created.Func(nil, err)
		}
		conn.Close(closed.Func)
	})

	r := created.Wait(t)
	require.Error(t, r.Err)
	assert.Equal(t, amqp.NotFound, amqp.MakeError(r.Err).Name)
	require.NoError(t, closed.Wait(t))
	assert.Equal(t, Closed, conn.State())
	assert.Empty(t, conn.Senders())
	assert.Equal(t, 1, lc.DisconnectCount())
}

func TestLinkCloseWhileAttachingFails(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	f.broker.SetRejectLink("q", amqp.Errorf(amqp.NotFound, "no such node"))

	created := test.NewCallback[*Sender](1)
	linkClosed := test.NewDone(2)
	conn.lane.Inject(func() {
		if err := conn.CreateSender("q", nil, created.Func); err != nil {
			created.Func(nil, err)
			return
		}
		s := conn.Senders()[0]
		s.Close(linkClosed.Func)
		s.Close(linkClosed.Func)
	})

	require.Error(t, created.Wait(t).Err)
	assert.Error(t, linkClosed.Wait(t))
	assert.Error(t, linkClosed.Wait(t))
	require.NoError(t, conn.CloseWait(timeout(t)))
}

func TestOperationsFromCallbacksRunInline(t *testing.T) {
	f := newFixture(t)
	type step struct {
		links int
		err   error
	}
	steps := test.NewCallback[[]step](1)
	created := test.NewCallback[*Sender](2)

	require.NoError(t, f.client.ConnectAsync(func(conn *Connection, err error) {
		if err != nil {
			steps.Func(nil, err)
			return
		}
		lc := f.broker.Connections()[0]
		var got []step
		err = conn.CreateSender("a", nil, created.Func)
		got = append(got, step{len(lc.Links()), err})
		err = conn.CreateAnonymousSender(created.Func)
		got = append(got, step{len(lc.Links()), err})
		steps.Func(got, nil)
	}))

	res := steps.Wait(t)
	require.NoError(t, res.Err)
	assert.Equal(t, []step{{1, nil}, {2, nil}}, res.Value)
	require.NoError(t, created.Wait(t).Err)
	require.NoError(t, created.Wait(t).Err)
	lc := f.broker.Connections()[0]
	assert.Equal(t, "a", lc.Links()[0].Address())
	assert.Equal(t, "", lc.Links()[1].Address())
	require.NoError(t, f.client.CloseWait(timeout(t)))
}

func TestSendAndReceive(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	ctx := timeout(t)

	got := test.NewCallback[string](1)
	_, err := conn.Receiver(ctx, "greetings", nil, func(d *Delivery) {
		body, err := d.Message().BodyAsString()
		got.Func(body, err)
	})
	require.NoError(t, err)
	s, err := conn.Sender(ctx, "greetings", nil)
	require.NoError(t, err)
	assert.Equal(t, "greetings", s.Address())
	assert.Same(t, conn, s.Connection())

	acked := test.NewDone(1)
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith("hello"), acked.Func))
	r := got.Wait(t)
	require.NoError(t, r.Err)
	assert.Equal(t, "hello", r.Value)
	// Accepted by auto-acknowledgement.
	assert.NoError(t, acked.Wait(t))

	assert.ErrorIs(t, s.Send(nil), ErrNilMessage)
	require.NoError(t, conn.CloseWait(ctx))
}

func TestManualSettlement(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	ctx := timeout(t)

	_, err := conn.Receiver(ctx, "jobs", &ReceiverOptions{AutoAcknowledgement: false}, func(d *Delivery) {
		assert.False(t, d.Settled())
		assert.NoError(t, d.Reject(amqp.Errorf(amqp.DecodeError, "bad job")))
		assert.True(t, d.Settled())
		assert.NoError(t, d.Accept())
	})
	require.NoError(t, err)
	s, err := conn.Sender(ctx, "jobs", nil)
	require.NoError(t, err)

	acked := test.NewDone(1)
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith("job"), acked.Func))
	assert.Equal(t, amqp.Errorf(amqp.DecodeError, "bad job"), acked.Wait(t))
	require.NoError(t, conn.CloseWait(ctx))
}

func TestAnonymousSenderNeedsTo(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	ctx := timeout(t)

	got := test.NewCallback[*amqp.Message](1)
	_, err := conn.Receiver(ctx, "inbox", nil, func(d *Delivery) { got.Func(d.Message(), nil) })
	require.NoError(t, err)
	s, err := conn.AnonymousSender(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Address())

	assert.ErrorIs(t, s.Send(amqp.NewMessageWith("lost")), ErrAddressRequired)
	m := amqp.NewMessageWith("found")
	m.To = "inbox"
	require.NoError(t, s.Send(m))
	assert.Equal(t, "inbox", got.Wait(t).Value.To)
	require.NoError(t, conn.CloseWait(ctx))
}

func TestDynamicReceiverBuffersUntilHandler(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	ctx := timeout(t)

	done := test.NewCallback[*Receiver](1)
	require.NoError(t, conn.CreateDynamicReceiver(done.Func))
	res := done.Wait(t)
	require.NoError(t, res.Err)
	r := res.Value
	require.Regexp(t, "^dynamic-", r.Address())

	s, err := conn.Sender(ctx, r.Address(), nil)
	require.NoError(t, err)
	acks := test.NewDone(2)
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith(int64(1)), acks.Func))
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith(int64(2)), acks.Func))
	acks.None(t, quiet)

	got := test.NewCallback[int64](2)
	r.Handler(func(d *Delivery) {
		n, err := d.Message().BodyAsInt64()
		got.Func(n, err)
	})
	assert.Equal(t, int64(1), got.Wait(t).Value)
	assert.Equal(t, int64(2), got.Wait(t).Value)
	require.NoError(t, acks.Wait(t))
	require.NoError(t, acks.Wait(t))
	require.NoError(t, conn.CloseWait(ctx))
}

func TestReceiverCloseReleasesBuffered(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	ctx := timeout(t)

	r, err := conn.Receiver(ctx, "work", nil, nil)
	require.NoError(t, err)
	s, err := conn.Sender(ctx, "work", nil)
	require.NoError(t, err)
	acked := test.NewDone(1)
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith("pending"), acked.Func))
	acked.None(t, quiet)

	require.NoError(t, closeLink(t, r.Close))
	assert.ErrorIs(t, acked.Wait(t), loopback.ErrReleased)
	assert.Len(t, conn.Receivers(), 0)

	// Closing again is a no-op and sends after close fail.
	require.NoError(t, closeLink(t, r.Close))
	require.NoError(t, closeLink(t, s.Close))
	require.NoError(t, s.SendWithAck(amqp.NewMessageWith("late"), acked.Func))
	assert.ErrorIs(t, acked.Wait(t), ErrClosed)
	require.NoError(t, conn.CloseWait(ctx))
}

func closeLink(t *testing.T, close func(func(error))) error {
	t.Helper()
	done := test.NewDone(1)
	close(done.Func)
	return done.Wait(t)
}

func TestLinkCloseFailureUnregisters(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.connect(t)
	s, err := conn.Sender(timeout(t), "flaky", nil)
	require.NoError(t, err)

	f.broker.SetFailLinkClose("flaky", errors.New("detach failed"))
	assert.EqualError(t, closeLink(t, s.Close), "detach failed")
	assert.Empty(t, conn.Senders())
	require.NoError(t, conn.CloseWait(timeout(t)))
	assert.Equal(t, []string{"opened broker", "link-opened sender", "link-failed sender", "ended local"}, f.events.Events())
}
