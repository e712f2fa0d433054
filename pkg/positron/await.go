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
	"context"
	"sync"

	"go.uber.org/multierr"
)

// join calls done once n completions have been added, with every non-nil
// completion error combined. It settles on every completion, successful or
// not. With n == 0 done is called at once.
type join struct {
	mu      sync.Mutex
	pending int
	err     error
	done    func(error)
}

func newJoin(n int, done func(error)) *join {
	j := &join{pending: n, done: done}
	if n == 0 {
		done(nil)
	}
	return j
}

func (j *join) add(err error) {
	j.mu.Lock()
	j.err = multierr.Append(j.err, err)
	j.pending--
	last := j.pending == 0
	err = j.err
	j.mu.Unlock()
	if last {
		j.done(err)
	}
}

// await starts an asynchronous operation and waits for its first result.
// Later results are dropped.
func await[T any](ctx context.Context, start func(func(T, error)) error) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	var zero T
	if err := start(func(v T, err error) {
		select {
		case ch <- result{v, err}:
		default:
		}
	}); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
