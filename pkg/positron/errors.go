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
)

var (
	// ErrAddressRequired is returned when a link address is missing and the
	// link is not dynamic.
	ErrAddressRequired = errors.New("address must be set if the link is not dynamic")

	// ErrAlreadyConnected is reported when the engine delivers a second
	// transport handle to a connection that already holds one.
	ErrAlreadyConnected = errors.New("unable to connect - already holding a connection")

	// ErrNotOpen is returned for link operations on a connection that is not open.
	ErrNotOpen = errors.New("connection is not open")

	// ErrClosed is returned for operations on a closed connection or link.
	ErrClosed = errors.New("closed")

	// ErrNilCallback is returned when a required completion callback is nil.
	ErrNilCallback = errors.New("completion callback must be set")
)

// ErrNilMessage is returned when sending a nil message.
var ErrNilMessage = errors.New("message must not be nil")
