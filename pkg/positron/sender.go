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
	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// Sender is a sending link.
type Sender struct {
	link
	es        engine.Sender
	anonymous bool
}

func newSender(c *Connection, es engine.Sender, anonymous bool) *Sender {
	return &Sender{link: newLink(c, "sender", es), es: es, anonymous: anonymous}
}

// Address is the target address, empty for an anonymous sender.
func (s *Sender) Address() string { return s.es.Address() }

// Send sends m without waiting for its outcome.
func (s *Sender) Send(m *amqp.Message) error { return s.SendWithAck(m, nil) }

// SendWithAck sends m and calls ack, if not nil, on the lane with nil when
// the peer accepts the message or with the reason it did not. An anonymous
// sender requires m.To.
func (s *Sender) SendWithAck(m *amqp.Message, ack func(error)) error {
	if m == nil {
		return ErrNilMessage
	}
	if s.anonymous && m.To == "" {
		return ErrAddressRequired
	}
	s.conn.lane.Run(func() {
		if s.closing {
			if ack != nil {
				ack(ErrClosed)
			}
			return
		}
		var outcome func(error)
		if ack != nil {
			outcome = func(err error) {
				s.conn.lane.Run(func() { ack(err) })
			}
		}
		s.es.Send(m, outcome)
	})
	return nil
}

// Close closes the link and unregisters it. done may be nil.
func (s *Sender) Close(done func(error)) { s.close(s, false, done) }
