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
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	amqp        string = "amqp"
	amqps              = "amqps"
	defaulthost        = "localhost"
)

// The way this is used it can only get a hostport error
func fixPortError(err error) error {
	if err == nil {
		return err
	}
	if addrErr, ok := err.(*net.AddrError); ok && addrErr.Err == "missing port in address" {
		return nil
	}
	return err
}

// ParseURL parses an AMQP URL string and returns a net/url.Url.
//
// It is more forgiving than net/url.Parse and allows most of the parts of the
// URL to be missing, assuming AMQP defaults for the missing parts:
// scheme "amqp", host "localhost", port "amqp" ("amqps" for the amqps scheme).
func ParseURL(s string) (u *url.URL, err error) {
	if s != "" && !strings.Contains(s, "://") && s[0] != '/' && s[0] != ':' {
		s = amqp + "://" + s
	}
	u, err = url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = amqp
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err = fixPortError(err); err != nil {
		return nil, err
	}
	if host == "" && port == "" {
		host = u.Host
	}
	if host == "" {
		host = defaulthost
	}
	if port == "" {
		port = u.Scheme
	}
	u.Host = net.JoinHostPort(host, port)
	return u, nil
}

// HostPort splits the host of a URL returned by ParseURL into host name and
// port number, mapping the symbolic "amqp" and "amqps" ports to 5672 and
// 5671. url.URL.Port and Hostname only understand numeric ports.
func HostPort(u *url.URL) (string, int, error) {
	host, p, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, err
	}
	switch p {
	case amqp:
		return host, 5672, nil
	case amqps:
		return host, 5671, nil
	default:
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q in %s", p, u)
		}
		return host, n, nil
	}
}

// PortNumber is the port of HostPort.
func PortNumber(u *url.URL) (int, error) {
	_, port, err := HostPort(u)
	return port, err
}
