package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateProgress(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		fraction  float64
		want      int
	}{
		{"nothing yet", 0, 4, 0, 0},
		{"half of first", 0, 4, 0.5, 12},
		{"one done", 1, 4, 0, 25},
		{"three and a half", 3, 4, 0.5, 87},
		{"all done", 4, 4, 0, 100},
		{"single file midway", 0, 1, 0.42, 42},
		{"fraction clamped high", 3, 4, 7, 100},
		{"fraction clamped low", 1, 4, -1, 25},
		{"overflow clamped", 9, 4, 0, 100},
		{"no files", 0, 0, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateProgress(tt.completed, tt.total, tt.fraction))
		})
	}
}

func TestAggregator_MonotonicAndEndsAt100(t *testing.T) {
	var seen []int
	agg := NewAggregator(3, func(p int) { seen = append(seen, p) })

	for file := 0; file < 3; file++ {
		agg.FileProgress(0, 1000)
		agg.FileProgress(500, 1000)
		agg.FileProgress(250, 1000) // a restart must not move the bar back
		agg.FileProgress(1000, 1000)
		agg.FileDone()
	}

	assert.Equal(t, 100, agg.Percent())
	assert.Equal(t, 3, agg.Completed())
	assert.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "percent must strictly increase between notifications")
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestAggregator_UnknownSizeOnlyMovesOnFileDone(t *testing.T) {
	agg := NewAggregator(2, nil)
	agg.FileProgress(4096, 0)
	assert.Equal(t, 0, agg.Percent())
	agg.FileDone()
	assert.Equal(t, 50, agg.Percent())
	agg.FileDone()
	agg.FileDone() // extra calls are ignored
	assert.Equal(t, 100, agg.Percent())
	assert.Equal(t, 2, agg.Completed())
}
