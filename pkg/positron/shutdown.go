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
	"github.com/positron-amqp/positron/pkg/engine"
)

// closer is a link that can be closed by the shutdown orchestrator.
type closer interface {
	Close(done func(error))
}

// shutdown closes every registered link, waits for all of them to settle,
// then closes the transport t. Runs on the lane.
func (c *Connection) shutdown(t engine.Connection) {
	c.links.Lock()
	links := make([]closer, 0, len(c.senders)+len(c.recvs))
	for _, s := range c.senders {
		links = append(links, s)
	}
	for _, r := range c.recvs {
		links = append(links, r)
	}
	c.links.Unlock()

	c.log.Debug().Int("links", len(links)).Msg("closing links")
	j := newJoin(len(links), func(err error) {
		c.lane.Run(func() { c.closeTransport(t, err) })
	})
	for _, l := range links {
		l.Close(j.add)
	}
}

func (c *Connection) closeTransport(t engine.Connection, linkErr error) {
	if linkErr != nil {
		c.log.Warn().Err(linkErr).Msg("links did not close cleanly")
	}
	if t.IsDisconnected() {
		c.closeDone(nil)
		return
	}
	fired := false
	t.CloseHandler(func(err error) {
		c.lane.Run(func() {
			if fired {
				return
			}
			fired = true
			c.release()
			c.closeDone(err)
		})
	})
	if err := t.Close(); err != nil {
		c.log.Warn().Err(err).Msg("transport close failed")
		c.closeDone(err)
	}
}

func (c *Connection) closeDone(err error) {
	c.finish("local")
	waiters := c.closeWaiters
	c.closeWaiters = nil
	if err == nil {
		c.log.Info().Msg("connection closed")
	}
	for _, done := range waiters {
		done(err)
	}
}
