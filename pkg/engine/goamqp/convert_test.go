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
	"errors"
	"fmt"
	"testing"
	"time"

	azamqp "github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

func TestTerminusMapping(t *testing.T) {
	assert.Equal(t, azamqp.DurabilityNone, durability(engine.DurabilityNone))
	assert.Equal(t, azamqp.DurabilityConfiguration, durability(engine.DurabilityConfiguration))
	assert.Equal(t, azamqp.DurabilityUnsettledState, durability(engine.DurabilityUnsettledState))

	assert.Equal(t, azamqp.ExpiryPolicyLinkDetach, expiryPolicy(engine.ExpireWithLink))
	assert.Equal(t, azamqp.ExpiryPolicySessionEnd, expiryPolicy(engine.ExpireWithSession))
	assert.Equal(t, azamqp.ExpiryPolicyConnectionClose, expiryPolicy(engine.ExpireWithConnection))
	assert.Equal(t, azamqp.ExpiryPolicyNever, expiryPolicy(engine.ExpireNever))

	assert.Nil(t, symbolStrings(nil))
	assert.Equal(t, []string{"shared", "global"}, symbolStrings(amqp.Symbols([]string{"shared", "global"})))
}

func TestConvertError(t *testing.T) {
	assert.NoError(t, convertError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, convertError(plain))

	remote := &azamqp.Error{Condition: azamqp.ErrCond(amqp.NotFound), Description: "no such queue"}
	assert.Equal(t, amqp.Errorf(amqp.NotFound, "no such queue"), convertError(remote))
	assert.Equal(t, amqp.Errorf(amqp.NotFound, "no such queue"), convertError(&azamqp.LinkError{RemoteErr: remote}))
	assert.Equal(t, amqp.Errorf(amqp.NotFound, "no such queue"), convertError(fmt.Errorf("attach: %w", remote)))
}

func TestMessageRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	m := &amqp.Message{
		Durable:               true,
		Priority:              7,
		TTL:                   time.Minute,
		MessageID:             "id-1",
		UserID:                "guest",
		To:                    "queue",
		Subject:               "greeting",
		ReplyTo:               "replies",
		CorrelationID:         uint64(42),
		ContentType:           "text/plain",
		CreationTime:          now,
		GroupID:               "group",
		GroupSequence:         3,
		ApplicationProperties: map[string]interface{}{"k": "v"},
		Annotations:           map[amqp.Symbol]interface{}{"x-opt-partition": int64(1)},
		Body:                  "hello",
	}
	az := toAzure(m)
	require.NotNil(t, az.Properties.To)
	assert.Equal(t, "queue", *az.Properties.To)
	assert.Nil(t, az.Properties.ContentEncoding)
	assert.Equal(t, []byte("guest"), az.Properties.UserID)
	assert.Equal(t, "hello", az.Value)

	back := fromAzure(az)
	assert.Equal(t, m, back)
}

func TestMessageBodies(t *testing.T) {
	az := toAzure(amqp.NewMessageWith([]byte("raw")))
	assert.Equal(t, [][]byte{[]byte("raw")}, az.Data)
	assert.Nil(t, az.Value)
	assert.Equal(t, []byte("raw"), fromAzure(az).Body)

	assert.Equal(t, []byte("ab"), fromAzure(&azamqp.Message{Data: [][]byte{[]byte("a"), []byte("b")}}).Body)

	az = toAzure(amqp.NewMessageWith(amqp.Symbol("sym")))
	assert.Equal(t, "sym", az.Value)
	assert.Equal(t, "sym", fromAzure(az).Body)

	type namedString string
	assert.Equal(t, amqp.Symbol("decoded"), fromAzure(&azamqp.Message{Value: namedString("decoded")}).Body)
	assert.Equal(t, int64(7), fromAzure(&azamqp.Message{Value: int64(7)}).Body)

	id := uuid.New()
	az = toAzure(amqp.NewMessageWith(id))
	assert.Equal(t, azamqp.UUID(id), az.Value)
	assert.Equal(t, id, fromAzure(az).Body)
}

func TestSASLSelection(t *testing.T) {
	assert.NotNil(t, saslType(engine.ConnectParams{}))
	assert.NotNil(t, saslType(engine.ConnectParams{Username: "u", Password: "p"}))
	assert.NotNil(t, saslType(engine.ConnectParams{SASLMechanisms: []string{"EXTERNAL", "anonymous"}}))
	assert.Nil(t, saslType(engine.ConnectParams{SASLMechanisms: []string{"EXTERNAL"}}))
}
