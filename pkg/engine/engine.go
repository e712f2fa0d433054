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

package engine

import (
	"crypto/tls"
	"time"

	"github.com/positron-amqp/positron/pkg/amqp"
)

// EndpointState is the local or remote state of a connection or link endpoint.
type EndpointState int

const (
	// Uninit means open has not been requested.
	Uninit EndpointState = iota
	// Active means the endpoint has been opened.
	Active
	// Closed means the endpoint has been closed or detached.
	Closed
)

func (s EndpointState) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// ConnectParams are the transport parameters for Client.Connect.
type ConnectParams struct {
	Host     string
	Port     int
	Username string
	Password string

	// SASLMechanisms restricts the mechanisms the engine may offer. Empty
	// means engine default: PLAIN with credentials, ANONYMOUS otherwise.
	SASLMechanisms []string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	IdleTimeout time.Duration
}

// Client establishes transport connections.
type Client interface {
	// Connect establishes transport-level connectivity to the peer. The AMQP
	// open handshake is not performed until Connection.Open.
	//
	// done is called with the new Connection or an error.
	Connect(params ConnectParams, done func(Connection, error))
}

// Connection is a transport connection handle.
//
// Setters must be called before Open. Handlers replace any previously
// installed handler.
type Connection interface {
	SetContainer(id string)
	SetHostname(name string)
	SetProperties(props map[amqp.Symbol]interface{})

	// OpenHandler is called when the remote peer answers Open, with a
	// non-nil error if the open was refused.
	OpenHandler(func(error))

	// CloseHandler is called when the connection is closed cleanly, either
	// because Close was called or because the peer closed it. The error is
	// the remote close condition, if any.
	CloseHandler(func(error))

	// DisconnectHandler is called when the transport is lost abruptly.
	DisconnectHandler(func())

	// Open starts the AMQP open handshake.
	Open()

	// Close starts the AMQP close handshake. It returns an error if the
	// close could not be issued.
	Close() error

	// Disconnect releases the transport without a handshake.
	Disconnect()

	IsDisconnected() bool
	LocalState() EndpointState
	RemoteState() EndpointState

	// CreateSender creates a sender link, not yet opened.
	// An empty address creates an anonymous sender.
	CreateSender(address string, opts LinkOptions) Sender

	// CreateReceiver creates a receiver link, not yet opened.
	CreateReceiver(address string, opts LinkOptions) Receiver
}

// LinkOptions are applied when a link is created.
type LinkOptions struct {
	// LinkName overrides the engine-generated link name.
	LinkName string
	// Dynamic requests the peer to assign the terminus address.
	Dynamic bool
}

// Link is a sender or receiver link handle.
type Link interface {
	Name() string

	// Address is the terminus address: the target address for a sender,
	// the source address for a receiver. For dynamic links it is the
	// peer-assigned address once open.
	Address() string

	// Source and Target are the local terminus descriptors. Changes take
	// effect on Open.
	Source() *Terminus
	Target() *Terminus

	SetOfferedCapabilities([]amqp.Symbol)
	SetDesiredCapabilities([]amqp.Symbol)

	// OpenHandler is called when the peer answers the attach.
	OpenHandler(func(error))

	// CloseHandler is called when a Close or Detach completes, or when the
	// peer closes the link.
	CloseHandler(func(error))

	Open()
	Close() error
	Detach() error

	LocalState() EndpointState
	RemoteState() EndpointState
}

// Sender is a sending link.
type Sender interface {
	Link

	// SetAutoSettle locally settles deliveries once the peer settles them.
	SetAutoSettle(bool)

	// SetAutoDrained marks the link drained automatically when the peer
	// requests a drain and nothing is queued.
	SetAutoDrained(bool)

	// Send queues m. outcome, if not nil, is called with nil when the peer
	// accepts the message and an error otherwise.
	Send(m *amqp.Message, outcome func(error))
}

// Receiver is a receiving link.
type Receiver interface {
	Link

	SetQoS(QoS)

	// SetPrefetch sets the credit window the engine maintains.
	SetPrefetch(credits int)

	// MessageHandler is called for each delivery.
	MessageHandler(func(Delivery))
}

// Delivery is a received message and its settlement operations.
type Delivery interface {
	Message() *amqp.Message

	// Settled is true if the delivery arrived pre-settled (at-most-once).
	Settled() bool

	Accept() error
	Reject(err error) error
	Release() error
}
