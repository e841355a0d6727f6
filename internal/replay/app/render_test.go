package app

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"replay_worker/internal/replay/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererScaleAndOffsets(t *testing.T) {
	r := NewRenderer(1280, 720)
	assert.InDelta(t, 1.5, r.scale, 1e-9)
	assert.InDelta(t, 40.0, r.offsetX, 1e-9)
	assert.InDelta(t, 0.0, r.offsetY, 1e-9)
	assert.Equal(t, 1280*720*3, r.FrameSize())
}

func TestRenderDrawsScene(t *testing.T) {
	r := NewRenderer(1280, 720)
	img := r.Render(domain.DefaultSnapshot())

	bg := img.RGBAAt(100, 700)
	assert.Equal(t, backgroundColor, bg)

	divider := img.RGBAAt(640, 400)
	assert.Equal(t, dividerColor, divider)

	// 左球拍：x = 40 + 24 .. +12，y = 200*1.5 .. +120
	paddle := img.RGBAAt(40+24+6, 300+60)
	assert.Equal(t, paddleColor, paddle)

	// 球心 (400*1.5+40, 240*1.5)
	ball := img.RGBAAt(640+2, 360)
	assert.Equal(t, ballColor, ball)
}

func TestRenderIsTotal(t *testing.T) {
	r := NewRenderer(testWidth, testHeight)
	extremes := []domain.Snapshot{
		{BallX: -1e12, BallY: 1e12, LeftPaddleY: math.MaxFloat64, RightPaddleY: -math.MaxFloat64},
		{BallX: math.NaN(), BallY: math.Inf(1), LeftPaddleY: math.Inf(-1), Finished: true},
		{LeftScore: math.MaxInt32, RightScore: -7, TargetScore: 0, Finished: true},
	}
	for _, s := range extremes {
		assert.NotPanics(t, func() {
			buf := r.RenderRGB(s)
			assert.Len(t, buf, testWidth*testHeight*3)
		})
	}
}

func TestRenderRGBLayout(t *testing.T) {
	r := NewRenderer(testWidth, testHeight)
	s := domain.DefaultSnapshot()

	img := r.Render(s)
	buf := r.RenderRGB(s)

	c := img.RGBAAt(0, testHeight-1)
	off := ((testHeight-1)*testWidth + 0) * 3
	assert.Equal(t, []byte{c.R, c.G, c.B}, buf[off:off+3])
}

func TestFramesFollowTimeline(t *testing.T) {
	r := NewRenderer(testWidth, testHeight)
	timeline := domain.Timeline{
		{OffsetMs: 0, Snapshot: domain.DefaultSnapshot()},
		{OffsetMs: 100, Snapshot: domain.Snapshot{BallX: 10, BallY: 10, Finished: true}},
	}

	var frames [][]byte
	for frame := range r.Frames(timeline, 150, testInterval) {
		frames = append(frames, append([]byte(nil), frame...))
	}
	require.Len(t, frames, 3)
	assert.Equal(t, r.RenderRGB(timeline[0].Snapshot), frames[0])
	assert.Equal(t, frames[0], frames[1])
	assert.Equal(t, r.RenderRGB(timeline[1].Snapshot), frames[2])
}

func TestFramesStopsEarly(t *testing.T) {
	r := NewRenderer(testWidth, testHeight)
	timeline := domain.Timeline{{Snapshot: domain.DefaultSnapshot()}}

	n := 0
	for range r.Frames(timeline, 10_000, testInterval) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEncodePNG(t *testing.T) {
	r := NewRenderer(testWidth, testHeight)
	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf, domain.DefaultSnapshot()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, testWidth, img.Bounds().Dx())
}
