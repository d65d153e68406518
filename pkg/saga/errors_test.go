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

package saga

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageError("Save", cause)

	assert.Contains(t, err.Error(), ErrCodeStorageError)
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
}

func TestSagaError_WithDetail(t *testing.T) {
	err := NewStepTimeoutError("charge-payment", 0)
	require.NotNil(t, err.Details)
	assert.Equal(t, "charge-payment", err.Details["step_id"])
}

func TestWrapError_NilCause(t *testing.T) {
	assert.Nil(t, WrapError(nil, "CODE", "msg", ErrorTypeSystem, false))
}

func TestErrorPredicates(t *testing.T) {
	notFound := NewSagaNotFoundError("saga-9")
	assert.True(t, IsSagaNotFound(notFound))
	assert.True(t, IsSagaNotFound(fmt.Errorf("wrapped: %w", notFound)))
	assert.False(t, IsSagaNotFound(errors.New("other")))

	timeout := NewStepTimeoutError("a", 0)
	assert.True(t, IsStepTimeout(timeout))
	assert.False(t, IsStepTimeout(notFound))

	compFailed := NewCompensationFailedError("a", "refund rejected")
	assert.True(t, IsCompensationFailed(compFailed))
	assert.False(t, IsCompensationFailed(timeout))
}

func TestErrStaleContext_IsSentinel(t *testing.T) {
	wrapped := fmt.Errorf("save failed: %w", ErrStaleContext)
	assert.ErrorIs(t, wrapped, ErrStaleContext)
}
