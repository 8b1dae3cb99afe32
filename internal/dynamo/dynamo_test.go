package dynamo

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{math.Inf(1), 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Split(t *testing.T) {
	q, p := State{1, 2, 3, 4}.Split()
	if len(q) != 2 || len(p) != 2 || q[1] != 2 || p[0] != 3 {
		t.Errorf("Split returned q=%v p=%v", q, p)
	}
}

func TestParallelForCoversRange(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100, 1000} {
		var count int64
		seen := make([]int32, n)
		ParallelFor(n, 8, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
				atomic.AddInt64(&count, 1)
			}
		})
		if int(count) != n {
			t.Errorf("n=%d: visited %d indices", n, count)
		}
		for i, v := range seen {
			if v != 1 {
				t.Errorf("n=%d: index %d visited %d times", n, i, v)
			}
		}
	}
}

func TestTrainingErrorUnwraps(t *testing.T) {
	err := &TrainingError{Iteration: 12, Phase: "fit", Wrapped: ErrInvalidInputShape}
	if !errors.Is(err, ErrInvalidInputShape) {
		t.Error("TrainingError does not unwrap to its cause")
	}
	want := "iteration 12 (fit): " + ErrInvalidInputShape.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
