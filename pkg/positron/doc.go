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
Package positron manages AMQP 1.0 client connections and the sender and
receiver links multiplexed over them.

A Client opens Connections. Each Connection owns one transport handle from
a protocol engine (see package engine) and a lane that serializes every
state change of the connection and its links, so no two callbacks for the
same connection ever run concurrently.

Operations are asynchronous and report through completion callbacks:

	client := positron.NewClient(positron.ClientOptions{Host: "broker", Port: 5672})
	client.ConnectAsync(func(conn *positron.Connection, err error) {
		if err != nil {
			return
		}
		conn.CreateSender("queue", nil, func(s *positron.Sender, err error) {
			s.Send(amqp.NewMessageWith("hello"))
		})
	})

Callbacks run on the connection's lane. Operations issued from a callback
run inline, in program order; operations issued from other goroutines are
queued on the lane.

Closing a connection first closes every registered link and waits for all
of them to settle, then closes the transport. The layer has no timeouts of
its own; the blocking helpers (Client.Connect, Connection.Sender,
Connection.Receiver, Connection.CloseWait) take a context for callers that
need a deadline.
*/
package positron

// This file is just for the package comment.
