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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyAccessors(t *testing.T) {
	s, err := NewMessageWith("hello").BodyAsString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	sym, err := NewMessageWith("queue").BodyAsSymbol()
	require.NoError(t, err)
	assert.Equal(t, Symbol("queue"), sym)

	b, err := NewMessageWith(true).BodyAsBool()
	require.NoError(t, err)
	assert.True(t, b)

	for _, v := range []interface{}{int8(-3), int16(-3), int32(-3), int64(-3)} {
		n, err := NewMessageWith(v).BodyAsInt64()
		require.NoError(t, err, "%T", v)
		assert.Equal(t, int64(-3), n)
	}
	n, err := NewMessageWith(uint32(7)).BodyAsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	_, err = NewMessageWith(uint64(1 << 63)).BodyAsInt64()
	assert.Error(t, err)

	f, err := NewMessageWith(float32(1.5)).BodyAsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	bin, err := NewMessageWith([]byte{1, 2}).BodyAsBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, bin)

	now := time.Now()
	ts, err := NewMessageWith(now).BodyAsTimestamp()
	require.NoError(t, err)
	assert.True(t, now.Equal(ts))

	id := uuid.New()
	for _, v := range []interface{}{id, [16]byte(id), id[:], id.String()} {
		got, err := NewMessageWith(v).BodyAsUUID()
		require.NoError(t, err, "%T", v)
		assert.Equal(t, id, got)
	}
}

func TestBodyAccessorMismatch(t *testing.T) {
	m := NewMessageWith(42)
	_, err := m.BodyAsString()
	assert.EqualError(t, err, "message body is int, not string")
	_, err = m.BodyAsBool()
	assert.Error(t, err)
	_, err = m.BodyAsFloat64()
	assert.Error(t, err)
	_, err = m.BodyAsUUID()
	assert.Error(t, err)
	assert.False(t, m.IsBodyNull())
	assert.True(t, (&Message{}).IsBodyNull())
}

func TestBodyAsJSON(t *testing.T) {
	var got struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, NewMessageWith(`{"name":"orders","count":3}`).BodyAsJSON(&got))
	assert.Equal(t, "orders", got.Name)
	assert.Equal(t, 3, got.Count)

	var list []int
	require.NoError(t, NewMessageWith([]byte(`[1,2,3]`)).BodyAsJSON(&list))
	assert.Equal(t, []int{1, 2, 3}, list)

	assert.Error(t, NewMessageWith("{").BodyAsJSON(&got))
	assert.Error(t, NewMessageWith(12).BodyAsJSON(&got))
}
