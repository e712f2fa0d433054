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
Package engine defines the protocol engine that positron drives.

An engine performs AMQP framing, SASL negotiation and flow control. positron
only orchestrates lifecycle and link configuration on top of it, through the
Client, Connection, Sender and Receiver interfaces declared here.

Engines report completion through handler callbacks. Callbacks may be
invoked from any goroutine; callers that need serialization must provide it
themselves (positron moves every callback onto the connection's lane).

Two engines are provided: package loopback is an in-memory broker for tests
and local use, package goamqp connects to real brokers.
*/
package engine

// This file is just for the package comment.
