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

	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/engine/goamqp"
	"github.com/positron-amqp/positron/pkg/internal/safemap"
	"github.com/positron-amqp/positron/pkg/telemetry"
)

// Client opens connections and keeps a registry of the open ones.
type Client struct {
	opts      ClientOptions
	engine    engine.Client
	log       zerolog.Logger
	collector telemetry.Collector
	conns     *safemap.Map[string, *Connection]
}

// ClientOption sets a collaborator of a Client.
type ClientOption func(*Client)

// WithEngine sets the protocol engine. The default is the go-amqp engine.
func WithEngine(e engine.Client) ClientOption { return func(c *Client) { c.engine = e } }

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) ClientOption { return func(c *Client) { c.log = log } }

// WithCollector sets the lifecycle metrics collector.
func WithCollector(col telemetry.Collector) ClientOption {
	return func(c *Client) { c.collector = col }
}

// NewClient creates a client for the peer described by opts.
func NewClient(opts ClientOptions, options ...ClientOption) *Client {
	c := &Client{
		opts:      opts,
		log:       zerolog.Nop(),
		collector: telemetry.Noop(),
		conns:     safemap.New[string, *Connection](),
	}
	for _, set := range options {
		set(c)
	}
	if c.engine == nil {
		c.engine = goamqp.NewClient(c.log)
	}
	return c
}

// Options returns the client options.
func (c *Client) Options() ClientOptions { return c.opts }

// ConnectAsync starts a new connection. done is called on the connection's
// lane once the connection is open or has failed. The only synchronous
// errors are a nil done and unusable TLS settings.
func (c *Client) ConnectAsync(done func(*Connection, error)) error {
	if done == nil {
		return ErrNilCallback
	}
	params, err := c.opts.connectParams()
	if err != nil {
		return err
	}
	conn := newConnection(c)
	conn.connect(params, done)
	return nil
}

// Connect opens a connection and waits for the result or for ctx to be done.
func (c *Client) Connect(ctx context.Context) (*Connection, error) {
	return await(ctx, c.ConnectAsync)
}

// Connections returns the open connections, in no particular order.
func (c *Client) Connections() []*Connection { return c.conns.Values() }

// Close closes every open connection and calls done, if not nil, when all
// of them have closed. The error joins the individual close errors.
func (c *Client) Close(done func(error)) {
	conns := c.conns.Values()
	j := newJoin(len(conns), func(err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("client close")
		}
		if done != nil {
			done(err)
		}
	})
	for _, conn := range conns {
		conn.Close(j.add)
	}
}

// CloseWait closes every open connection and waits for ctx.
func (c *Client) CloseWait(ctx context.Context) error {
	_, err := await(ctx, func(done func(struct{}, error)) error {
		c.Close(func(err error) { done(struct{}{}, err) })
		return nil
	})
	return err
}

func (c *Client) register(conn *Connection)   { c.conns.Put(conn.id, conn) }
func (c *Client) unregister(conn *Connection) { c.conns.Delete(conn.id) }
