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
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/positron-amqp/positron/pkg/amqp"
	"github.com/positron-amqp/positron/pkg/engine"
)

// ClientOptions configure the transport and the AMQP open of every
// connection made by a Client.
type ClientOptions struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ContainerID is sent in the open frame. Empty lets the engine choose.
	ContainerID string `yaml:"container_id"`
	// VirtualHost is sent as the open hostname. Empty leaves it unset.
	VirtualHost string `yaml:"virtual_host"`

	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// SASLMechanisms restricts the mechanisms offered, in order of preference.
	SASLMechanisms []string `yaml:"sasl_mechanisms"`

	TLS TLSOptions `yaml:"tls"`
}

// TLSOptions enable and configure TLS for the transport.
type TLSOptions struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name"`
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Address returns host:port.
func (o ClientOptions) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// ApplyURL sets host, port, credentials, virtual host and TLS from an
// amqp:// or amqps:// URL, parsed with amqp.ParseURL. A path other than "/"
// is taken as the virtual host.
func (o *ClientOptions) ApplyURL(s string) error {
	u, err := amqp.ParseURL(s)
	if err != nil {
		return err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("unsupported scheme %q in %s", u.Scheme, s)
	}
	host, port, err := amqp.HostPort(u)
	if err != nil {
		return err
	}
	o.Host, o.Port = host, port
	if u.User != nil {
		o.Username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			o.Password = p
		}
	}
	if vhost := pathVirtualHost(u); vhost != "" {
		o.VirtualHost = vhost
	}
	if u.Scheme == "amqps" {
		o.TLS.Enabled = true
	}
	return nil
}

func pathVirtualHost(u *url.URL) string {
	if len(u.Path) > 1 {
		return u.Path[1:]
	}
	return ""
}

func (o ClientOptions) connectParams() (engine.ConnectParams, error) {
	p := engine.ConnectParams{
		Host:           o.Host,
		Port:           o.Port,
		Username:       o.Username,
		Password:       o.Password,
		SASLMechanisms: o.SASLMechanisms,
		IdleTimeout:    o.IdleTimeout,
	}
	if p.Host == "" {
		p.Host = "localhost"
	}
	if p.Port == 0 {
		p.Port = 5672
		if o.TLS.Enabled {
			p.Port = 5671
		}
	}
	if o.TLS.Enabled {
		cfg, err := o.TLS.config()
		if err != nil {
			return p, err
		}
		p.TLSConfig = cfg
	}
	return p, nil
}

func (t TLSOptions) config() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}
	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// ReceiverOptions configure a receiver link. Enumerated values are the
// AMQP names and are matched ignoring case.
type ReceiverOptions struct {
	LinkName string `yaml:"link_name"`
	Dynamic  bool   `yaml:"dynamic"`

	// QoS is AT_MOST_ONCE or AT_LEAST_ONCE. Empty keeps the engine default.
	QoS string `yaml:"qos"`

	Capabilities        []string `yaml:"capabilities"`
	DesiredCapabilities []string `yaml:"desired_capabilities"`

	// Durable forces terminus durability UNSETTLED_STATE and expiry policy
	// NEVER, overriding TerminusDurability and TerminusExpiryPolicy. A
	// durable receiver detaches instead of closing.
	Durable bool `yaml:"durable"`

	// TerminusDurability is NONE, CONFIGURATION or UNSETTLED_STATE.
	TerminusDurability string `yaml:"terminus_durability"`
	// TerminusExpiryPolicy is LINK_DETACH, SESSION_END, CONNECTION_CLOSE or NEVER.
	TerminusExpiryPolicy string `yaml:"terminus_expiry_policy"`

	// AutoAcknowledgement accepts each unsettled delivery after the message
	// handler returns, unless the handler settled it.
	AutoAcknowledgement bool `yaml:"auto_acknowledgement"`
}

// DefaultReceiverOptions are used when CreateReceiver is given nil options.
func DefaultReceiverOptions() ReceiverOptions {
	return ReceiverOptions{AutoAcknowledgement: true}
}

// receiverConfig holds the parsed enumerated receiver settings.
type receiverConfig struct {
	qos        *engine.QoS
	durability *engine.Durability
	expiry     *engine.ExpiryPolicy
}

func (o *ReceiverOptions) config() (rc receiverConfig, err error) {
	if o.QoS != "" {
		q, err := engine.ParseQoS(o.QoS)
		if err != nil {
			return rc, err
		}
		rc.qos = &q
	}
	if o.TerminusDurability != "" {
		d, err := engine.ParseDurability(o.TerminusDurability)
		if err != nil {
			return rc, err
		}
		rc.durability = &d
	}
	if o.TerminusExpiryPolicy != "" {
		e, err := engine.ParseExpiryPolicy(o.TerminusExpiryPolicy)
		if err != nil {
			return rc, err
		}
		rc.expiry = &e
	}
	return rc, nil
}

// SenderOptions configure a sender link.
type SenderOptions struct {
	LinkName    string `yaml:"link_name"`
	Dynamic     bool   `yaml:"dynamic"`
	AutoSettle  bool   `yaml:"auto_settle"`
	AutoDrained bool   `yaml:"auto_drained"`
}

// DefaultSenderOptions are used when a sender is created with nil options.
func DefaultSenderOptions() SenderOptions {
	return SenderOptions{AutoSettle: true, AutoDrained: true}
}
