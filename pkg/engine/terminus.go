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
	"fmt"
	"strings"
)

// Durability is the terminus durability.
type Durability uint32

const (
	// DurabilityNone retains no terminus state durably.
	DurabilityNone Durability = iota
	// DurabilityConfiguration retains the existence and configuration of the terminus.
	DurabilityConfiguration
	// DurabilityUnsettledState also retains the unsettled state of durable messages.
	DurabilityUnsettledState
)

var durabilityNames = []string{"NONE", "CONFIGURATION", "UNSETTLED_STATE"}

func (d Durability) String() string {
	if int(d) < len(durabilityNames) {
		return durabilityNames[d]
	}
	return fmt.Sprintf("Durability(%d)", uint32(d))
}

// ParseDurability parses NONE, CONFIGURATION or UNSETTLED_STATE, ignoring case.
func ParseDurability(s string) (Durability, error) {
	for i, n := range durabilityNames {
		if strings.EqualFold(n, s) {
			return Durability(i), nil
		}
	}
	return 0, fmt.Errorf("invalid terminus durability %q", s)
}

// ExpiryPolicy is the terminus expiry policy.
type ExpiryPolicy uint32

const (
	// ExpireWithLink expires the terminus when the link detaches. This is
	// the AMQP default.
	ExpireWithLink ExpiryPolicy = iota
	// ExpireWithSession expires the terminus when the session ends.
	ExpireWithSession
	// ExpireWithConnection expires the terminus when the connection closes.
	ExpireWithConnection
	// ExpireNever never expires the terminus.
	ExpireNever
)

var expiryNames = []string{"LINK_DETACH", "SESSION_END", "CONNECTION_CLOSE", "NEVER"}

func (e ExpiryPolicy) String() string {
	if int(e) < len(expiryNames) {
		return expiryNames[e]
	}
	return fmt.Sprintf("ExpiryPolicy(%d)", uint32(e))
}

// ParseExpiryPolicy parses LINK_DETACH, SESSION_END, CONNECTION_CLOSE or NEVER, ignoring case.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	for i, n := range expiryNames {
		if strings.EqualFold(n, s) {
			return ExpiryPolicy(i), nil
		}
	}
	return 0, fmt.Errorf("invalid terminus expiry policy %q", s)
}

// QoS is the receiver acknowledgement mode.
type QoS int

const (
	// AtLeastOnce deliveries are unsettled until the receiver acknowledges them.
	AtLeastOnce QoS = iota
	// AtMostOnce deliveries are pre-settled by the sender.
	AtMostOnce
)

func (q QoS) String() string {
	if q == AtMostOnce {
		return "AT_MOST_ONCE"
	}
	return "AT_LEAST_ONCE"
}

// ParseQoS parses AT_MOST_ONCE or AT_LEAST_ONCE, ignoring case.
func ParseQoS(s string) (QoS, error) {
	switch {
	case strings.EqualFold(s, "AT_MOST_ONCE"):
		return AtMostOnce, nil
	case strings.EqualFold(s, "AT_LEAST_ONCE"):
		return AtLeastOnce, nil
	}
	return 0, fmt.Errorf("invalid qos %q", s)
}

// Terminus is the source or target descriptor of a link.
type Terminus struct {
	Address    string
	Durability Durability
	Expiry     ExpiryPolicy
	Dynamic    bool
}
