package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current Status
		pct     int
		want    Status
	}{
		{StatusActive, 0, StatusActive},
		{StatusActive, 99, StatusActive},
		{StatusActive, 100, StatusCompleted},
		{StatusCompleted, 100, StatusCompleted},
		{StatusCompleted, 99, StatusActive},
		{StatusDropped, 100, StatusDropped},
		{StatusDropped, 0, StatusDropped},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextStatus(tt.current, tt.pct), "%s at %d%%", tt.current, tt.pct)
	}
}

func TestApplyProgress(t *testing.T) {
	e := newTestEnrollment(t)

	assert.False(t, e.ApplyProgress(40))
	assert.Equal(t, 40, e.CompletionPercentage)

	assert.True(t, e.ApplyProgress(100))
	assert.Equal(t, StatusCompleted, e.Status)

	assert.True(t, e.ApplyProgress(80))
	assert.Equal(t, StatusActive, e.Status)
}
