package domain

// 遊戲世界尺寸 (world units)
const (
	CourtWidth   = 800
	CourtHeight  = 480
	PaddleHeight = 80
	PaddleWidth  = 12
	BallSize     = 12

	DefaultTargetScore = 5
)

// Snapshot one instant of simulated match state
type Snapshot struct {
	BallX        float64
	BallY        float64
	LeftPaddleY  float64
	RightPaddleY float64
	LeftScore    int
	RightScore   int
	TargetScore  int
	Finished     bool
}

// DefaultSnapshot 欄位缺漏時使用的預設值：球在中央、球拍置中
func DefaultSnapshot() Snapshot {
	return Snapshot{
		BallX:        CourtWidth / 2,
		BallY:        CourtHeight / 2,
		LeftPaddleY:  (CourtHeight - PaddleHeight) / 2,
		RightPaddleY: (CourtHeight - PaddleHeight) / 2,
		TargetScore:  DefaultTargetScore,
	}
}

// ReplayEvent snapshot at an offset from the start of the match
type ReplayEvent struct {
	OffsetMs int64
	Snapshot Snapshot
}

// Timeline replay events in file order
type Timeline []ReplayEvent

// LastOffset offset of the final event, 0 when empty
func (t Timeline) LastOffset() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].OffsetMs
}

// Pivot 縮圖使用中間的事件
func (t Timeline) Pivot() Snapshot {
	if len(t) == 0 {
		return DefaultSnapshot()
	}
	return t[len(t)/2].Snapshot
}
