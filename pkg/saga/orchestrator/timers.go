// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package orchestrator

import (
	"sync"
	"time"
)

// timerKey identifies a pending timer by saga and step identity. A typed
// composite key rules out collisions that naive string concatenation of the
// two IDs would allow.
type timerKey struct {
	sagaID string
	stepID string
}

// timerTable tracks the deferred callbacks used for per-step timeouts and
// retry backoff. Every timer is registered under its key so that an earlier
// resolution can cancel it before a stale callback fires against an
// already-advanced saga.
type timerTable struct {
	mu      sync.Mutex
	timers  map[timerKey]*time.Timer
	stopped bool
}

func newTimerTable() *timerTable {
	return &timerTable{
		timers: make(map[timerKey]*time.Timer),
	}
}

// schedule arms fn to run after d, replacing any timer already registered
// under the same key.
func (t *timerTable) schedule(sagaID, stepID string, d time.Duration, fn func()) {
	key := timerKey{sagaID: sagaID, stepID: stepID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if existing, ok := t.timers[key]; ok {
		existing.Stop()
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		// The timer may have been superseded between firing and acquiring
		// the lock; only the registered timer runs its callback.
		if t.stopped || t.timers[key] != tm {
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
	t.timers[key] = tm
}

// cancel stops and removes the timer registered for (sagaID, stepID).
// It reports whether a pending timer existed.
func (t *timerTable) cancel(sagaID, stepID string) bool {
	key := timerKey{sagaID: sagaID, stepID: stepID}

	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// cancelSaga stops and removes every timer registered for the saga.
func (t *timerTable) cancelSaga(sagaID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		if key.sagaID == sagaID {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

// stopAll stops every pending timer and rejects further scheduling.
func (t *timerTable) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

// pending returns the number of registered timers.
func (t *timerTable) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
