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

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/sagakit/pkg/saga"
)

func testContext(sagaID string, version int64) *saga.ExecutionContext {
	return &saga.ExecutionContext{
		SagaID:        sagaID,
		SagaType:      "order_fulfillment",
		CorrelationID: "order-42",
		State:         saga.StateRunning,
		Data:          map[string]interface{}{},
		StartedAt:     time.Now(),
		LastUpdatedAt: time.Now(),
		Version:       version,
	}
}

func TestMemoryRepository_SaveAndLoad(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testContext("saga-1", 1)))

	loaded, err := repo.Load(ctx, "saga-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "saga-1", loaded.SagaID)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestMemoryRepository_LoadMissing(t *testing.T) {
	repo := NewMemoryRepository()

	loaded, err := repo.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryRepository_SaveRejectsStaleVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testContext("saga-1", 2)))

	err := repo.Save(ctx, testContext("saga-1", 2))
	assert.ErrorIs(t, err, saga.ErrStaleContext)

	err = repo.Save(ctx, testContext("saga-1", 1))
	assert.ErrorIs(t, err, saga.ErrStaleContext)

	require.NoError(t, repo.Save(ctx, testContext("saga-1", 3)))

	loaded, err := repo.Load(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Version)
}

func TestMemoryRepository_StoredCopyIsIsolated(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	ec := testContext("saga-1", 1)
	require.NoError(t, repo.Save(ctx, ec))
	ec.Data["mutated"] = true

	loaded, err := repo.Load(ctx, "saga-1")
	require.NoError(t, err)
	assert.NotContains(t, loaded.Data, "mutated")

	loaded.State = saga.StateFailed
	again, err := repo.Load(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, saga.StateRunning, again.State)
}

func TestMemoryRepository_FindByState(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	running := testContext("saga-1", 1)
	require.NoError(t, repo.Save(ctx, running))

	failed := testContext("saga-2", 1)
	failed.State = saga.StateFailed
	require.NoError(t, repo.Save(ctx, failed))

	found, err := repo.FindByState(ctx, saga.StateFailed)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "saga-2", found[0].SagaID)
}

func TestMemoryRepository_FindByCorrelationID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := testContext("saga-1", 1)
	b := testContext("saga-2", 1)
	b.CorrelationID = "other"
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	found, err := repo.FindByCorrelationID(ctx, "order-42")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "saga-1", found[0].SagaID)
}

func TestMemoryRepository_FindTimedOut(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	expired := testContext("saga-expired", 1)
	expired.TimeoutAt = &past
	require.NoError(t, repo.Save(ctx, expired))

	future := now.Add(time.Minute)
	alive := testContext("saga-alive", 1)
	alive.TimeoutAt = &future
	require.NoError(t, repo.Save(ctx, alive))

	terminal := testContext("saga-done", 1)
	terminal.State = saga.StateCompleted
	terminal.TimeoutAt = &past
	require.NoError(t, repo.Save(ctx, terminal))

	found, err := repo.FindTimedOut(ctx, now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "saga-expired", found[0].SagaID)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testContext("saga-1", 1)))
	require.NoError(t, repo.Delete(ctx, "saga-1"))

	loaded, err := repo.Load(ctx, "saga-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.NoError(t, repo.Delete(ctx, "saga-1"), "deleting a missing context is not an error")
}

func TestMemoryRepository_ValidatesInput(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	assert.Error(t, repo.Save(ctx, nil))
	assert.Error(t, repo.Save(ctx, &saga.ExecutionContext{}))
}

func TestMemoryRepository_Close(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Close())

	assert.Error(t, repo.Save(context.Background(), testContext("saga-1", 1)))
	_, err := repo.Load(context.Background(), "saga-1")
	assert.Error(t, err)
}

func TestMemoryRepository_RespectsContextCancellation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, repo.Save(ctx, testContext("saga-1", 1)))
	_, err := repo.Load(ctx, "saga-1")
	assert.Error(t, err)
}
