package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameCount(t *testing.T) {
	cases := []struct {
		name     string
		totalMs  int64
		interval int64
		want     int
	}{
		{"zero duration", 0, 50, 1},
		{"just under a boundary", 999, 50, 20},
		{"exact boundary", 1000, 50, 20},
		{"just over a boundary", 1001, 50, 21},
		{"single interval", 50, 50, 1},
		{"invalid interval", 1000, 0, 1},
		{"huge duration hint", math.MaxInt64, 50, int(math.MaxInt64/50 + 1)},
		{"huge interval", 1, math.MaxInt64, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FrameCount(tc.totalMs, tc.interval))
		})
	}
}

func TestExpectedDurationMs(t *testing.T) {
	timeline := Timeline{{OffsetMs: 0}, {OffsetMs: 100}, {OffsetMs: 250}}

	assert.Equal(t, int64(250), ExpectedDurationMs(timeline, 0, 50))
	assert.Equal(t, int64(1000), ExpectedDurationMs(timeline, 1000, 50))

	zeroes := Timeline{{OffsetMs: 0}, {OffsetMs: 0}, {OffsetMs: 0}}
	assert.Equal(t, int64(150), ExpectedDurationMs(zeroes, 0, 50))
	assert.Equal(t, int64(50), ExpectedDurationMs(Timeline{{OffsetMs: 0}}, 0, 50))
}

func TestFrameSelectorMonotone(t *testing.T) {
	timeline := Timeline{
		{OffsetMs: 0, Snapshot: Snapshot{LeftScore: 0}},
		{OffsetMs: 100, Snapshot: Snapshot{LeftScore: 1}},
		{OffsetMs: 250, Snapshot: Snapshot{LeftScore: 2}},
	}
	selector := NewFrameSelector(timeline, 50)

	want := map[int]int{0: 0, 3: 1, 6: 2}
	last := 0
	for frame := 0; frame <= 8; frame++ {
		idx := selector.Index(frame)
		assert.GreaterOrEqual(t, idx, last, "frame %d rewound the cursor", frame)
		last = idx
		if expected, ok := want[frame]; ok {
			assert.Equal(t, expected, idx, "frame %d", frame)
		}
	}
}

func TestFrameSelectorSelectSnapshot(t *testing.T) {
	timeline := Timeline{
		{OffsetMs: 0, Snapshot: Snapshot{LeftScore: 0}},
		{OffsetMs: 100, Snapshot: Snapshot{LeftScore: 1}},
	}
	selector := NewFrameSelector(timeline, 50)

	assert.Equal(t, 0, selector.Select(0).LeftScore)
	assert.Equal(t, 0, selector.Select(1).LeftScore)
	assert.Equal(t, 1, selector.Select(2).LeftScore)
	assert.Equal(t, 1, selector.Select(40).LeftScore)
}

func TestFrameSelectorOutOfOrderDoesNotPanic(t *testing.T) {
	timeline := Timeline{{OffsetMs: 300}, {OffsetMs: 100}, {OffsetMs: 200}}
	selector := NewFrameSelector(timeline, 50)

	assert.NotPanics(t, func() {
		for frame := 0; frame < 10; frame++ {
			selector.Select(frame)
		}
	})
}

func TestTimelinePivot(t *testing.T) {
	timeline := Timeline{
		{Snapshot: Snapshot{LeftScore: 1}},
		{Snapshot: Snapshot{LeftScore: 2}},
		{Snapshot: Snapshot{LeftScore: 3}},
		{Snapshot: Snapshot{LeftScore: 4}},
	}
	assert.Equal(t, 3, timeline.Pivot().LeftScore)
	assert.Equal(t, DefaultSnapshot(), Timeline{}.Pivot())
}
