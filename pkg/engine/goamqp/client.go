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

/*
Package goamqp is an engine.Client over github.com/Azure/go-amqp.

Client.Connect dials the transport (TCP, or TLS when ConnectParams.TLSConfig
is set). Connection.Open performs the AMQP open and SASL handshake and
begins the single session that carries every link of the connection.

go-amqp calls block; each connection and each link serializes its blocking
calls on its own lane, and handler callbacks are delivered on the
connection's event lane in the order they complete.
*/
package goamqp

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/engine"
)

// Client dials AMQP peers. It implements engine.Client.
type Client struct {
	log    zerolog.Logger
	dialer net.Dialer
}

// NewClient returns a Client that logs to log.
func NewClient(log zerolog.Logger) *Client {
	return &Client{log: log.With().Str("engine", "go-amqp").Logger()}
}

// Connect dials params.Host:params.Port in a new goroutine and calls done
// with the unopened connection.
func (c *Client) Connect(params engine.ConnectParams, done func(engine.Connection, error)) {
	go func() {
		nc, err := c.dial(context.Background(), params)
		if err != nil {
			done(nil, err)
			return
		}
		done(newConn(c.log, nc, params), nil)
	}()
}

func (c *Client) dial(ctx context.Context, params engine.ConnectParams) (net.Conn, error) {
	address := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
	if params.TLSConfig == nil {
		return c.dialer.DialContext(ctx, "tcp", address)
	}
	cfg := params.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = params.Host
	}
	d := tls.Dialer{NetDialer: &c.dialer, Config: cfg}
	return d.DialContext(ctx, "tcp", address)
}
