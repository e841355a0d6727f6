package domain

// ExpectedDurationMs max(durationHint, lastOffset); when both are zero it falls back
// to one interval per event with a floor of one interval.
func ExpectedDurationMs(t Timeline, durationHintMs, intervalMs int64) int64 {
	base := durationHintMs
	if last := t.LastOffset(); last > base {
		base = last
	}
	if base > 0 {
		return base
	}
	fallback := int64(len(t)) * intervalMs
	if fallback < intervalMs {
		fallback = intervalMs
	}
	return fallback
}

// FrameCount ceil(totalMs / intervalMs), at least 1
func FrameCount(totalMs, intervalMs int64) int {
	if intervalMs <= 0 || totalMs <= 0 {
		return 1
	}
	n := totalMs / intervalMs
	if totalMs%intervalMs != 0 {
		n++
	}
	return int(n)
}

// FrameSelector maps increasing frame indices to the latest event at or before the
// frame timestamp. The cursor only moves forward, so a full export is O(frames + events).
type FrameSelector struct {
	timeline   Timeline
	intervalMs int64
	cursor     int
}

// NewFrameSelector timeline must hold at least one event
func NewFrameSelector(t Timeline, intervalMs int64) *FrameSelector {
	return &FrameSelector{timeline: t, intervalMs: intervalMs}
}

// Index advances the cursor for frameIndex and returns the selected event index.
func (s *FrameSelector) Index(frameIndex int) int {
	target := int64(frameIndex) * s.intervalMs
	for s.cursor+1 < len(s.timeline) && s.timeline[s.cursor+1].OffsetMs <= target {
		s.cursor++
	}
	return s.cursor
}

// Select returns the snapshot for frameIndex.
func (s *FrameSelector) Select(frameIndex int) Snapshot {
	return s.timeline[s.Index(frameIndex)].Snapshot
}
