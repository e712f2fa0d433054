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
	"bytes"
	"errors"
	"reflect"

	azamqp "github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

func durability(d engine.Durability) azamqp.Durability {
	switch d {
	case engine.DurabilityConfiguration:
		return azamqp.DurabilityConfiguration
	case engine.DurabilityUnsettledState:
		return azamqp.DurabilityUnsettledState
	default:
		return azamqp.DurabilityNone
	}
}

func expiryPolicy(e engine.ExpiryPolicy) azamqp.ExpiryPolicy {
	switch e {
	case engine.ExpireWithSession:
		return azamqp.ExpiryPolicySessionEnd
	case engine.ExpireWithConnection:
		return azamqp.ExpiryPolicyConnectionClose
	case engine.ExpireNever:
		return azamqp.ExpiryPolicyNever
	default:
		return azamqp.ExpiryPolicyLinkDetach
	}
}

func symbolStrings(syms []amqp.Symbol) []string {
	if len(syms) == 0 {
		return nil
	}
	s := make([]string, len(syms))
	for i, sym := range syms {
		s[i] = string(sym)
	}
	return s
}

// convertError turns go-amqp remote error conditions into amqp.Error.
// Other errors are returned unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var remote *azamqp.Error
	switch e := err.(type) {
	case *azamqp.Error:
		remote = e
	case *azamqp.ConnError:
		remote = e.RemoteErr
	case *azamqp.LinkError:
		remote = e.RemoteErr
	case *azamqp.SessionError:
		remote = e.RemoteErr
	}
	if remote == nil {
		var ae *azamqp.Error
		if !errors.As(err, &ae) {
			return err
		}
		remote = ae
	}
	return amqp.Error{Name: string(remote.Condition), Description: remote.Description}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toAzure(m *amqp.Message) *azamqp.Message {
	msg := &azamqp.Message{
		Header: &azamqp.MessageHeader{
			Durable:       m.Durable,
			Priority:      m.Priority,
			TTL:           m.TTL,
			FirstAcquirer: m.FirstAcquirer,
			DeliveryCount: m.DeliveryCount,
		},
		Properties: &azamqp.MessageProperties{
			MessageID:       m.MessageID,
			To:              stringPtr(m.To),
			Subject:         stringPtr(m.Subject),
			ReplyTo:         stringPtr(m.ReplyTo),
			CorrelationID:   m.CorrelationID,
			ContentType:     stringPtr(m.ContentType),
			ContentEncoding: stringPtr(m.ContentEncoding),
			GroupID:         stringPtr(m.GroupID),
			ReplyToGroupID:  stringPtr(m.ReplyToGroupID),
		},
		ApplicationProperties: m.ApplicationProperties,
	}
	p := msg.Properties
	if m.UserID != "" {
		p.UserID = []byte(m.UserID)
	}
	if !m.ExpiryTime.IsZero() {
		t := m.ExpiryTime
		p.AbsoluteExpiryTime = &t
	}
	if !m.CreationTime.IsZero() {
		t := m.CreationTime
		p.CreationTime = &t
	}
	if m.GroupSequence != 0 {
		seq := uint32(m.GroupSequence)
		p.GroupSequence = &seq
	}
	if len(m.Annotations) > 0 {
		msg.Annotations = make(azamqp.Annotations, len(m.Annotations))
		for k, v := range m.Annotations {
			msg.Annotations[string(k)] = v
		}
	}
	switch body := m.Body.(type) {
	case []byte:
		msg.Data = [][]byte{body}
	case amqp.Symbol:
		// go-amqp has no exported symbol type.
		msg.Value = string(body)
	case uuid.UUID:
		msg.Value = azamqp.UUID(body)
	default:
		msg.Value = body
	}
	return msg
}

func fromAzure(msg *azamqp.Message) *amqp.Message {
	m := &amqp.Message{ApplicationProperties: msg.ApplicationProperties}
	if h := msg.Header; h != nil {
		m.Durable = h.Durable
		m.Priority = h.Priority
		m.TTL = h.TTL
		m.FirstAcquirer = h.FirstAcquirer
		m.DeliveryCount = h.DeliveryCount
	}
	if p := msg.Properties; p != nil {
		m.MessageID = p.MessageID
		m.UserID = string(p.UserID)
		m.To = stringVal(p.To)
		m.Subject = stringVal(p.Subject)
		m.ReplyTo = stringVal(p.ReplyTo)
		m.CorrelationID = p.CorrelationID
		m.ContentType = stringVal(p.ContentType)
		m.ContentEncoding = stringVal(p.ContentEncoding)
		m.GroupID = stringVal(p.GroupID)
		m.ReplyToGroupID = stringVal(p.ReplyToGroupID)
		if p.AbsoluteExpiryTime != nil {
			m.ExpiryTime = *p.AbsoluteExpiryTime
		}
		if p.CreationTime != nil {
			m.CreationTime = *p.CreationTime
		}
		if p.GroupSequence != nil {
			m.GroupSequence = int32(*p.GroupSequence)
		}
	}
	if len(msg.Annotations) > 0 {
		m.Annotations = make(map[amqp.Symbol]interface{}, len(msg.Annotations))
		for k, v := range msg.Annotations {
			if s, ok := k.(string); ok {
				m.Annotations[amqp.Symbol(s)] = v
			}
		}
	}
	switch {
	case len(msg.Data) == 1:
		m.Body = msg.Data[0]
	case len(msg.Data) > 1:
		m.Body = bytes.Join(msg.Data, nil)
	default:
		switch v := msg.Value.(type) {
		case string:
			m.Body = v
		case azamqp.UUID:
			m.Body = uuid.UUID(v)
		default:
			m.Body = symbolValue(v)
		}
	}
	return m
}

// symbolValue maps go-amqp's internal symbol type, a named string, to
// amqp.Symbol. Other values are returned as they are.
func symbolValue(v any) any {
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
		return amqp.Symbol(rv.String())
	}
	return v
}
