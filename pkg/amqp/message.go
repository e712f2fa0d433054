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

package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a decoded AMQP message: header and properties sections plus an
// already-decoded body value.
//
// The body is whatever the protocol engine decoded: string, []byte, Symbol,
// bool, integer and float types, time.Time, uuid.UUID, lists and maps.
// The BodyAs* accessors convert it to the requested type or return an error.
type Message struct {
	// Durable indicates that any parties taking responsibility
	// for the message must durably store the content.
	Durable bool

	// Priority impacts ordering guarantees. Within a
	// given ordered context, higher priority messages may jump ahead of
	// lower priority messages.
	Priority uint8

	// TTL or Time To Live, a message it may be dropped after this duration
	TTL time.Duration

	// FirstAcquirer indicates that the recipient of the message is the first
	// recipient to acquire the message.
	FirstAcquirer bool

	// DeliveryCount tracks how many attempts have been made to
	// delivery a message.
	DeliveryCount uint32

	// MessageID can be an a string, an unsigned long, a uuid or a binary value.
	MessageID interface{}

	UserID string

	// To is the address of the node the message is destined for. Required
	// when sending on an anonymous sender.
	To string

	Subject string
	ReplyTo string

	// CorrelationID is set on correlated request and response messages.
	CorrelationID interface{}

	ContentType     string
	ContentEncoding string

	// ExpiryTime indicates an absolute time when the message may be dropped.
	// A Zero time indicates a message never expires.
	ExpiryTime   time.Time
	CreationTime time.Time

	GroupID        string
	GroupSequence  int32
	ReplyToGroupID string

	// Properties set by the application to be carried with the message.
	ApplicationProperties map[string]interface{}

	// Message annotations added as part of the bare message at creation.
	Annotations map[Symbol]interface{}

	Body interface{}
}

// NewMessageWith creates a message with value as the body.
func NewMessageWith(value interface{}) *Message { return &Message{Body: value} }

// Address is an alias for To.
func (m *Message) Address() string { return m.To }

// IsBodyNull is true if the message has no body.
func (m *Message) IsBodyNull() bool { return m.Body == nil }

func (m *Message) bodyError(want string) error {
	return fmt.Errorf("message body is %T, not %s", m.Body, want)
}

// BodyAsString returns the body as a string. Symbol bodies are accepted.
func (m *Message) BodyAsString() (string, error) {
	switch v := m.Body.(type) {
	case string:
		return v, nil
	case Symbol:
		return string(v), nil
	}
	return "", m.bodyError("string")
}

// BodyAsSymbol returns the body as a Symbol. String bodies are accepted.
func (m *Message) BodyAsSymbol() (Symbol, error) {
	s, err := m.BodyAsString()
	if err != nil {
		return "", m.bodyError("symbol")
	}
	return Symbol(s), nil
}

// BodyAsBool returns the body as a bool.
func (m *Message) BodyAsBool() (bool, error) {
	if v, ok := m.Body.(bool); ok {
		return v, nil
	}
	return false, m.bodyError("bool")
}

// BodyAsInt64 returns any integer body widened to int64. Unsigned values
// that do not fit are an error.
func (m *Message) BodyAsInt64() (int64, error) {
	switch v := m.Body.(type) {
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > 1<<63-1 {
			return 0, fmt.Errorf("message body %d overflows int64", v)
		}
		return int64(v), nil
	case uint:
		if uint64(v) > 1<<63-1 {
			return 0, fmt.Errorf("message body %d overflows int64", v)
		}
		return int64(v), nil
	}
	return 0, m.bodyError("integer")
}

// BodyAsFloat64 returns a float32 or float64 body as float64.
func (m *Message) BodyAsFloat64() (float64, error) {
	switch v := m.Body.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, m.bodyError("float")
}

// BodyAsBinary returns a []byte body. String bodies are converted.
func (m *Message) BodyAsBinary() ([]byte, error) {
	switch v := m.Body.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, m.bodyError("binary")
}

// BodyAsTimestamp returns a time.Time body.
func (m *Message) BodyAsTimestamp() (time.Time, error) {
	if v, ok := m.Body.(time.Time); ok {
		return v, nil
	}
	return time.Time{}, m.bodyError("timestamp")
}

// BodyAsUUID returns a UUID body. 16-byte binary and string bodies are parsed.
func (m *Message) BodyAsUUID() (uuid.UUID, error) {
	switch v := m.Body.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		return uuid.FromBytes(v)
	case string:
		return uuid.Parse(v)
	}
	return uuid.Nil, m.bodyError("uuid")
}

// BodyAsJSON decodes a JSON document carried as a string or binary body into v.
func (m *Message) BodyAsJSON(v interface{}) error {
	data, err := m.BodyAsBinary()
	if err != nil {
		return m.bodyError("json")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("message body is not valid json: %w", err)
	}
	return nil
}

// String is a human readable summary, for logging.
func (m *Message) String() string {
	return fmt.Sprintf("Message{To: %q, Subject: %q, Body: %#v}", m.To, m.Subject, m.Body)
}
