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

package safemap

import (
	"sync"
)

// Map is a goroutine-safe map.
type Map[K comparable, V any] struct {
	m    map[K]V
	lock sync.Mutex
}

func New[K comparable, V any]() *Map[K, V] { return &Map[K, V]{m: make(map[K]V)} }

func (m *Map[K, V]) Get(key K) V {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.m[key]
}

func (m *Map[K, V]) GetOk(key K) (V, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.m[key]
	return v, ok
}

func (m *Map[K, V]) Put(key K, value V) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.m[key] = value
}

func (m *Map[K, V]) Delete(key K) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.m, key)
}

func (m *Map[K, V]) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.m)
}

// Values returns a snapshot of the values, in no particular order.
func (m *Map[K, V]) Values() []V {
	m.lock.Lock()
	defer m.lock.Unlock()
	vs := make([]V, 0, len(m.m))
	for _, v := range m.m {
		vs = append(vs, v)
	}
	return vs
}
