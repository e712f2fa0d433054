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
	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/engine"
)

// link is the lifecycle shared by Sender and Receiver. Fields below el are
// only used on the connection's lane.
type link struct {
	conn *Connection
	role string
	log  zerolog.Logger
	el   engine.Link

	closing      bool
	ended        bool
	closeWaiters []func(error)
}

func newLink(c *Connection, role string, el engine.Link) link {
	return link{
		conn: c,
		role: role,
		el:   el,
		log:  c.log.With().Str("link", el.Name()).Str("role", role).Logger(),
	}
}

// Name is the link name.
func (l *link) Name() string { return l.el.Name() }

// Connection returns the connection the link belongs to.
func (l *link) Connection() *Connection { return l.conn }

// open registers self and opens the engine link. opened is called on the
// lane with the attach result.
func (l *link) open(self closer, opened func(error)) {
	l.conn.register(self)
	l.el.OpenHandler(func(err error) {
		l.conn.lane.Run(func() { l.onOpen(self, err, opened) })
	})
	l.el.CloseHandler(func(err error) {
		l.conn.lane.Run(func() { l.onClose(self, err) })
	})
	l.el.Open()
}

func (l *link) onOpen(self closer, err error, opened func(error)) {
	if err != nil {
		l.log.Warn().Err(err).Str("address", l.el.Address()).Msg("attach failed")
		l.closing, l.ended = true, true
		l.conn.unregister(self)
		// A close requested while attaching ends with the attach.
		waiters := l.closeWaiters
		l.closeWaiters = nil
		opened(err)
		for _, done := range waiters {
			done(err)
		}
		return
	}
	l.log.Debug().Str("address", l.el.Address()).Msg("attached")
	l.conn.collector.LinkOpened(l.role)
	opened(nil)
}

// onClose handles the end of the link, whether a local close completed or
// the peer detached.
func (l *link) onClose(self closer, err error) {
	if l.ended {
		return
	}
	l.closing, l.ended = true, true
	l.conn.unregister(self)
	l.conn.collector.LinkClosed(l.role, err)
	waiters := l.closeWaiters
	l.closeWaiters = nil
	if len(waiters) == 0 {
		l.log.Info().Err(err).Msg("detached by peer")
	} else {
		l.log.Debug().Err(err).Msg("closed")
	}
	for _, done := range waiters {
		done(err)
	}
}

func (l *link) close(self closer, detach bool, done func(error)) {
	l.conn.lane.Run(func() {
		complete := func(err error) {
			if done != nil {
				done(err)
			}
		}
		if l.ended {
			complete(nil)
			return
		}
		l.closeWaiters = append(l.closeWaiters, complete)
		if l.closing {
			return
		}
		l.closing = true
		var err error
		if detach {
			err = l.el.Detach()
		} else {
			err = l.el.Close()
		}
		if err != nil {
			l.onClose(self, err)
		}
	})
}
