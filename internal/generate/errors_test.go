package generate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBudgetError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "explicit code on any status",
			err:  &BackendError{Status: 422, Body: `{"error":{"code":"context_length_exceeded"}}`},
			want: true,
		},
		{
			name: "400 with token limit vocabulary",
			err:  &BackendError{Status: 400, Body: `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`},
			want: true,
		},
		{
			name: "400 with too long vocabulary",
			err:  &BackendError{Status: 400, Body: "prompt is too long"},
			want: true,
		},
		{
			name: "400 unrelated validation",
			err:  &BackendError{Status: 400, Body: `{"error":{"message":"invalid model name"}}`},
			want: false,
		},
		{
			name: "500 with matching vocabulary",
			err:  &BackendError{Status: 500, Body: "request exceeded internal deadline"},
			want: false,
		},
		{
			name: "wrapped backend error",
			err:  fmt.Errorf("request failed: %w", &BackendError{Status: 400, Body: "context window exceeded"}),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBudgetError(tt.err))
		})
	}
}

func TestBackendError_Error(t *testing.T) {
	err := &BackendError{Status: 429, Body: "slow down"}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}
