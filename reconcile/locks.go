// Copyright 2025 The Gompei Bot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconcile

import (
	"sync"
)

type memberKey struct {
	guildId  uint64
	memberId uint64
}

type memberLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes reconciliation per (guild, member) pair so that a
// role event racing a sweep (or a second event for the same member) can't
// interleave the read-evaluate-apply sequence. Lock entries are reference
// counted and removed once unused, so the map doesn't grow with member count.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[memberKey]*memberLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[memberKey]*memberLock),
	}
}

// Lock acquires the lock for a key and returns the corresponding unlock
// function
func (k *keyedMutex) Lock(key memberKey) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &memberLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
