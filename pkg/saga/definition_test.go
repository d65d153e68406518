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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	Type string `json:"type"`
}

func (c testCommand) CommandType() string { return c.Type }

func validDefinition() *SagaDefinition {
	return &SagaDefinition{
		SagaType: "test_saga",
		Steps: []SagaStep{
			{
				StepID:              "step-1",
				StepName:            "First",
				Command:             testCommand{Type: "cmd.one"},
				CompensationCommand: testCommand{Type: "cmd.one.undo"},
			},
			{
				StepID:   "step-2",
				StepName: "Second",
				Command:  testCommand{Type: "cmd.two"},
			},
		},
	}
}

func TestSagaDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SagaDefinition)
		wantErr bool
	}{
		{"valid", func(d *SagaDefinition) {}, false},
		{"empty saga type", func(d *SagaDefinition) { d.SagaType = "" }, true},
		{"no steps", func(d *SagaDefinition) { d.Steps = nil }, true},
		{"empty step id", func(d *SagaDefinition) { d.Steps[0].StepID = "" }, true},
		{"duplicate step id", func(d *SagaDefinition) { d.Steps[1].StepID = "step-1" }, true},
		{"nil command", func(d *SagaDefinition) { d.Steps[0].Command = nil }, true},
		{"invalid retry policy", func(d *SagaDefinition) {
			d.Steps[0].Retry = &RetryPolicy{MaxAttempts: 0}
		}, true},
		{"valid retry policy", func(d *SagaDefinition) {
			d.Steps[0].Retry = &RetryPolicy{MaxAttempts: 2, Backoff: 100}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSagaDefinition_StepByID(t *testing.T) {
	def := validDefinition()

	step := def.StepByID("step-2")
	require.NotNil(t, step)
	assert.Equal(t, "Second", step.StepName)

	assert.Nil(t, def.StepByID("missing"))
}

func TestSagaStep_HasCompensation(t *testing.T) {
	def := validDefinition()
	assert.True(t, def.Steps[0].HasCompensation())
	assert.False(t, def.Steps[1].HasCompensation())
}
