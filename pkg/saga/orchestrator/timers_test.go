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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerTable_ScheduleFires(t *testing.T) {
	table := newTimerTable()
	var fired atomic.Int32

	table.schedule("saga-1", "step-1", 5*time.Millisecond, func() {
		fired.Add(1)
	})

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, table.pending(), "fired timer must remove itself")
}

func TestTimerTable_CancelPreventsFiring(t *testing.T) {
	table := newTimerTable()
	var fired atomic.Int32

	table.schedule("saga-1", "step-1", 20*time.Millisecond, func() {
		fired.Add(1)
	})
	assert.True(t, table.cancel("saga-1", "step-1"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, table.cancel("saga-1", "step-1"), "cancelling twice finds nothing")
}

func TestTimerTable_ScheduleReplacesExisting(t *testing.T) {
	table := newTimerTable()
	var first, second atomic.Int32

	table.schedule("saga-1", "step-1", 10*time.Millisecond, func() { first.Add(1) })
	table.schedule("saga-1", "step-1", 10*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool {
		return second.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced timer must not fire")
}

func TestTimerTable_CancelSaga(t *testing.T) {
	table := newTimerTable()
	var fired atomic.Int32

	table.schedule("saga-1", "step-1", 20*time.Millisecond, func() { fired.Add(1) })
	table.schedule("saga-1", "step-2", 20*time.Millisecond, func() { fired.Add(1) })
	table.schedule("saga-2", "step-1", 20*time.Millisecond, func() { fired.Add(1) })

	table.cancelSaga("saga-1")
	assert.Equal(t, 1, table.pending())

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "only the surviving saga's timer fires")
}

func TestTimerTable_StopAll(t *testing.T) {
	table := newTimerTable()
	var fired atomic.Int32

	table.schedule("saga-1", "step-1", 10*time.Millisecond, func() { fired.Add(1) })
	table.stopAll()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// Scheduling after stop is a no-op.
	table.schedule("saga-2", "step-1", time.Millisecond, func() { fired.Add(1) })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
