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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurability(t *testing.T) {
	for s, want := range map[string]Durability{
		"NONE":            DurabilityNone,
		"configuration":   DurabilityConfiguration,
		"Unsettled_State": DurabilityUnsettledState,
	} {
		d, err := ParseDurability(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, d)
	}
	_, err := ParseDurability("forever")
	assert.EqualError(t, err, `invalid terminus durability "forever"`)
	assert.Equal(t, "UNSETTLED_STATE", DurabilityUnsettledState.String())
	assert.Equal(t, "Durability(9)", Durability(9).String())
}

func TestParseExpiryPolicy(t *testing.T) {
	for s, want := range map[string]ExpiryPolicy{
		"LINK_DETACH":      ExpireWithLink,
		"session_end":      ExpireWithSession,
		"CONNECTION_CLOSE": ExpireWithConnection,
		"never":            ExpireNever,
	} {
		e, err := ParseExpiryPolicy(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, e)
		assert.Equal(t, want, mustExpiry(t, e.String()))
	}
	_, err := ParseExpiryPolicy("")
	assert.Error(t, err)
}

func mustExpiry(t *testing.T, s string) ExpiryPolicy {
	t.Helper()
	e, err := ParseExpiryPolicy(s)
	require.NoError(t, err)
	return e
}

func TestParseQoS(t *testing.T) {
	q, err := ParseQoS("at_most_once")
	require.NoError(t, err)
	assert.Equal(t, AtMostOnce, q)
	q, err = ParseQoS("AT_LEAST_ONCE")
	require.NoError(t, err)
	assert.Equal(t, AtLeastOnce, q)
	_, err = ParseQoS("exactly_once")
	assert.Error(t, err)
	assert.Equal(t, "AT_MOST_ONCE", AtMostOnce.String())
}

func TestEndpointStateString(t *testing.T) {
	assert.Equal(t, "uninit", Uninit.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "closed", Closed.String())
}
