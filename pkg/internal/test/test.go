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

// Utilities for testing completion-callback APIs.
package test

import (
	"testing"
	"time"
)

// Timeout bounds every wait in this package.
var Timeout = 5 * time.Second

// Result is the outcome of a completion callback.
type Result[T any] struct {
	Value T
	Err   error
}

// Callback captures the results of a completion callback on a buffered
// channel so tests can wait for them.
type Callback[T any] struct {
	ch chan Result[T]
}

// NewCallback returns a Callback that can buffer n calls without blocking
// the caller.
func NewCallback[T any](n int) *Callback[T] {
	return &Callback[T]{ch: make(chan Result[T], n)}
}

// Func is the function to pass as the completion callback.
func (c *Callback[T]) Func(v T, err error) { c.ch <- Result[T]{v, err} }

// Wait returns the next result, failing t if none arrives within Timeout.
func (c *Callback[T]) Wait(t testing.TB) Result[T] {
	t.Helper()
	select {
	case r := <-c.ch:
		return r
	case <-time.After(Timeout):
		t.Fatalf("timed out waiting for %T callback", c)
		return Result[T]{}
	}
}

// None fails t if a result arrives within d.
func (c *Callback[T]) None(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case r := <-c.ch:
		t.Fatalf("unexpected callback: %+v", r)
	case <-time.After(d):
	}
}

// Done captures an error-only completion callback.
type Done struct{ Callback[struct{}] }

// NewDone returns a Done that can buffer n calls.
func NewDone(n int) *Done { return &Done{Callback[struct{}]{ch: make(chan Result[struct{}], n)}} }

// Func is the function to pass as the completion callback.
func (d *Done) Func(err error) { d.Callback.Func(struct{}{}, err) }

// Wait returns the next error, failing t if none arrives within Timeout.
func (d *Done) Wait(t testing.TB) error {
	t.Helper()
	return d.Callback.Wait(t).Err
}

// Signal is a channel-backed event counter for handlers with no arguments.
type Signal chan struct{}

// NewSignal returns a Signal that can buffer n events.
func NewSignal(n int) Signal { return make(Signal, n) }

// Fire records one event.
func (s Signal) Fire() { s <- struct{}{} }

// Wait fails t if no event arrives within Timeout.
func (s Signal) Wait(t testing.TB) {
	t.Helper()
	select {
	case <-s:
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for signal")
	}
}

// None fails t if an event arrives within d.
func (s Signal) None(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case <-s:
		t.Fatal("unexpected signal")
	case <-time.After(d):
	}
}
