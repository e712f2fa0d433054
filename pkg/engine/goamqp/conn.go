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
	"fmt"
	"net"
	"strings"
	"sync"

	azamqp "github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
	"github.com/positron-amqp/positron/pkg/lane"
)

var errNotOpen = errors.New("go-amqp: connection is not open")

type conn struct {
	log    zerolog.Logger
	nc     net.Conn
	params engine.ConnectParams
	events *lane.Lane // handler callbacks
	io     *lane.Lane // blocking connection calls

	mu            sync.Mutex
	container     string
	hostname      string
	properties    map[string]any
	az            *azamqp.Conn
	session       *azamqp.Session
	openH, closeH func(error)
	disconnectH   func()
	local, remote engine.EndpointState
	disconnected  bool
	ended         bool
}

func newConn(log zerolog.Logger, nc net.Conn, params engine.ConnectParams) *conn {
	id := uuid.NewString()
	log = log.With().Str("transport", id).Str("peer", nc.RemoteAddr().String()).Logger()
	c := &conn{
		log:    log,
		params: params,
		events: lane.New("events-"+id, log),
		io:     lane.New("io-"+id, log),
	}
	c.nc = &watchedConn{Conn: nc, closed: c.transportClosed}
	return c
}

// watchedConn calls closed the first time the connection is closed, by
// go-amqp or by Disconnect.
type watchedConn struct {
	net.Conn
	once   sync.Once
	closed func()
}

func (w *watchedConn) Close() error {
	w.once.Do(w.closed)
	return w.Conn.Close()
}

func (c *conn) SetContainer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.container = id
}

func (c *conn) SetHostname(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostname = name
}

func (c *conn) SetProperties(props map[amqp.Symbol]interface{}) {
	m := make(map[string]any, len(props))
	for k, v := range props {
		m[string(k)] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties = m
}

func (c *conn) OpenHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openH = h
}

func (c *conn) CloseHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeH = h
}

func (c *conn) DisconnectHandler(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectH = h
}

func (c *conn) options() *azamqp.ConnOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &azamqp.ConnOptions{
		ContainerID: c.container,
		HostName:    c.hostname,
		Properties:  c.properties,
		IdleTimeout: c.params.IdleTimeout,
		SASLType:    saslType(c.params),
	}
}

// saslType picks the first supported mechanism from params.SASLMechanisms,
// or PLAIN when credentials are set and ANONYMOUS otherwise.
func saslType(params engine.ConnectParams) azamqp.SASLType {
	mechs := params.SASLMechanisms
	if len(mechs) == 0 {
		if params.Username != "" {
			mechs = []string{"PLAIN"}
		} else {
			mechs = []string{"ANONYMOUS"}
		}
	}
	for _, m := range mechs {
		switch strings.ToUpper(m) {
		case "PLAIN":
			return azamqp.SASLTypePlain(params.Username, params.Password)
		case "ANONYMOUS":
			return azamqp.SASLTypeAnonymous()
		}
	}
	return nil
}

func (c *conn) Open() {
	c.mu.Lock()
	c.local = engine.Active
	c.mu.Unlock()
	opts := c.options()
	c.io.Inject(func() {
		ctx := context.Background()
		az, err := azamqp.NewConn(ctx, c.nc, opts)
		var session *azamqp.Session
		if err == nil {
			if session, err = az.NewSession(ctx, nil); err != nil {
				_ = az.Close()
			}
		}
		c.mu.Lock()
		if err != nil {
			c.remote = engine.Closed
		} else {
			c.az, c.session = az, session
			c.remote = engine.Active
		}
		h := c.openH
		c.mu.Unlock()
		if err != nil {
			c.log.Debug().Err(err).Msg("open failed")
			err = convertError(err)
		}
		c.events.Inject(func() {
			if h != nil {
				h(err)
			}
		})
	})
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return errNotOpen
	}
	c.local = engine.Closed
	c.ended = true
	az := c.az
	remoteClosed := c.remote == engine.Closed
	c.mu.Unlock()
	c.io.Inject(func() {
		err := error(nil)
		if az != nil {
			err = az.Close()
		}
		var connErr *azamqp.ConnError
		if errors.As(err, &connErr) && connErr.RemoteErr == nil {
			err = nil
		}
		c.mu.Lock()
		c.remote = engine.Closed
		h := c.closeH
		c.mu.Unlock()
		if remoteClosed {
			return
		}
		c.events.Inject(func() {
			if h != nil {
				h(convertError(err))
			}
		})
	})
	return nil
}

func (c *conn) Disconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.ended = true
	c.local, c.remote = engine.Closed, engine.Closed
	c.mu.Unlock()
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debug().Err(err).Msg("transport close")
	}
}

// fail reports a connection-level error seen by a link operation.
func (c *conn) fail(err error) {
	var connErr *azamqp.ConnError
	if errors.As(err, &connErr) {
		c.transportClosed()
	}
}

// transportClosed runs when the socket is closed. Unless the connection
// was already ended locally, go-amqp gave up on it: collect the reason
// from Close and report it.
func (c *conn) transportClosed() {
	c.mu.Lock()
	az, ended := c.az, c.ended
	c.mu.Unlock()
	if az == nil || ended {
		return
	}
	c.io.Inject(func() { c.end(az.Close()) })
}

// end reports a connection that ended without a local Close, at most once.
// A peer close, with or without an error condition, is a remote close.
// Anything else is a lost transport.
func (c *conn) end(err error) {
	var remoteErr error
	lost := false
	if err != nil {
		var connErr *azamqp.ConnError
		if errors.As(err, &connErr) && connErr.RemoteErr != nil {
			remoteErr = convertError(connErr.RemoteErr)
		} else {
			lost = true
		}
	}
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.remote = engine.Closed
	if lost {
		c.disconnected = true
		c.local = engine.Closed
	}
	closeH, disconnectH := c.closeH, c.disconnectH
	c.mu.Unlock()
	c.log.Debug().Err(err).Bool("lost", lost).Msg("connection ended")
	c.events.Inject(func() {
		if lost {
			if disconnectH != nil {
				disconnectH()
			}
			return
		}
		if closeH != nil {
			closeH(remoteErr)
		}
	})
}

func (c *conn) IsDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *conn) LocalState() engine.EndpointState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *conn) RemoteState() engine.EndpointState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *conn) sessionOrNil() *azamqp.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *conn) CreateSender(address string, opts engine.LinkOptions) engine.Sender {
	return newLink(c, true, address, opts)
}

func (c *conn) CreateReceiver(address string, opts engine.LinkOptions) engine.Receiver {
	return newLink(c, false, address, opts)
}

func (c *conn) String() string { return fmt.Sprintf("go-amqp:%s", c.nc.RemoteAddr()) }
