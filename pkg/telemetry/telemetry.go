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

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures connection and link lifecycle events.
//
// Hooks are called inline on connection lanes and must not block.
type Collector interface {
	ConnectionOpened(host string)
	ConnectionFailed(host string)
	// ConnectionEnded is called once per opened connection. reason is one of
	// "local", "remote" or "disconnect".
	ConnectionEnded(reason string)
	LinkOpened(role string)
	LinkClosed(role string, err error)
}

type noopCollector struct{}

// Noop returns a collector that discards all events.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ConnectionOpened(string)  {}
func (noopCollector) ConnectionFailed(string)  {}
func (noopCollector) ConnectionEnded(string)   {}
func (noopCollector) LinkOpened(string)        {}
func (noopCollector) LinkClosed(string, error) {}

// PrometheusCollector exposes lifecycle counters via Prometheus.
type PrometheusCollector struct {
	opened      *prometheus.CounterVec
	failed      *prometheus.CounterVec
	ended       *prometheus.CounterVec
	open        prometheus.Gauge
	linksOpened *prometheus.CounterVec
	linksClosed *prometheus.CounterVec
}

// NewPrometheusCollector registers the lifecycle metrics with reg, or with
// the default registerer if reg is nil. Metrics already registered with reg
// by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{}
	var err error
	if p.opened, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "positron_connections_opened_total",
		Help: "Number of connections that completed the open handshake.",
	}, []string{"host"})); err != nil {
		return nil, err
	}
	if p.failed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "positron_connections_failed_total",
		Help: "Number of connection attempts that failed to connect or open.",
	}, []string{"host"})); err != nil {
		return nil, err
	}
	if p.ended, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "positron_connections_ended_total",
		Help: "Number of opened connections that ended, by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if p.open, err = register[prometheus.Gauge](reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "positron_connections_open",
		Help: "Number of connections currently open.",
	})); err != nil {
		return nil, err
	}
	if p.linksOpened, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "positron_links_opened_total",
		Help: "Number of links attached, by role.",
	}, []string{"role"})); err != nil {
		return nil, err
	}
	if p.linksClosed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "positron_links_closed_total",
		Help: "Number of link closes completed, by role and outcome.",
	}, []string{"role", "outcome"})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// ConnectionOpened counts an open connection to host.
func (p *PrometheusCollector) ConnectionOpened(host string) {
	if p == nil {
		return
	}
	p.opened.WithLabelValues(host).Inc()
	p.open.Inc()
}

// ConnectionFailed counts a failed connection attempt to host.
func (p *PrometheusCollector) ConnectionFailed(host string) {
	if p == nil {
		return
	}
	p.failed.WithLabelValues(host).Inc()
}

// ConnectionEnded counts the end of an opened connection.
func (p *PrometheusCollector) ConnectionEnded(reason string) {
	if p == nil {
		return
	}
	p.ended.WithLabelValues(reason).Inc()
	p.open.Dec()
}

func (p *PrometheusCollector) LinkOpened(role string) {
	if p == nil {
		return
	}
	p.linksOpened.WithLabelValues(role).Inc()
}

func (p *PrometheusCollector) LinkClosed(role string, err error) {
	if p == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.linksClosed.WithLabelValues(role, outcome).Inc()
}
