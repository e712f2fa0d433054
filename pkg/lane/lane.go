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

/*
Package lane provides serialized execution lanes.

A Lane runs injected functions one at a time, in the order they were
injected, so state owned by a lane needs no further locking as long as it is
only touched by functions running on the lane.

A lane owns no goroutine while idle. Inject starts a drain goroutine when the
queue goes from empty to non-empty; the goroutine exits as soon as the queue
is empty again.

Run is a trampoline: it calls f inline when the caller is already running on
the lane and injects it otherwise. This keeps functions issued from lane
callbacks in program order without a scheduling hop.
*/
package lane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rs/zerolog"
)

// Injecter allows functions to be "injected" into a lane, to be called in
// sequence with every other function on the same lane.
type Injecter interface {
	// Inject queues f to run on the lane and returns without waiting.
	// f should not block, no further functions can be processed until f returns.
	Inject(f func())

	// InjectWait is like Inject but does not return till f() has completed
	// or ctx is done, and returns the error from f() or ctx.
	InjectWait(ctx context.Context, f func() error) error
}

// Lane is a serialized execution lane. The zero value is not usable, create
// lanes with New.
type Lane struct {
	name   string
	log    zerolog.Logger
	mu     sync.Mutex
	queue  []func()
	active bool
	owner  atomic.Int64 // goroutine id of the drain goroutine, 0 when idle
}

// New creates an idle lane. The name is used in log messages.
func New(name string, log zerolog.Logger) *Lane {
	return &Lane{name: name, log: log.With().Str("lane", name).Logger()}
}

func (l *Lane) String() string { return l.name }

// Inject queues f to run on the lane.
func (l *Lane) Inject(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	if l.active {
		l.mu.Unlock()
		return
	}
	l.active = true
	l.mu.Unlock()
	go l.drain()
}

// InjectWait runs f on the lane and waits for it. If the caller is already
// on the lane f is called inline.
func (l *Lane) InjectWait(ctx context.Context, f func() error) error {
	if l.OnLane() {
		return f()
	}
	done := make(chan error, 1)
	l.Inject(func() { done <- f() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run calls f inline if the caller is running on the lane, otherwise it
// injects f and returns immediately.
func (l *Lane) Run(f func()) {
	if l.OnLane() {
		f()
	} else {
		l.Inject(f)
	}
}

// OnLane is true if the calling goroutine is currently running a function
// for this lane.
func (l *Lane) OnLane() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Get()
}

// Idle is true if nothing is queued or running.
func (l *Lane) Idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.active
}

func (l *Lane) drain() {
	l.owner.Store(goid.Get())
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.owner.Store(0)
			l.active = false
			l.mu.Unlock()
			return
		}
		f := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.call(f)
	}
}

// Panics are logged and swallowed, a failed function must not stall the lane.
func (l *Lane) call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Err(fmt.Errorf("%v", r)).Msg("recovered panic in lane function")
		}
	}()
	f()
}
