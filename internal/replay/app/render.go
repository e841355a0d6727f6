package app

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"iter"
	"math"

	"replay_worker/internal/replay/domain"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	backgroundColor = color.RGBA{12, 18, 28, 255}
	dividerColor    = color.RGBA{60, 70, 85, 255}
	paddleColor     = color.RGBA{230, 230, 230, 255}
	ballColor       = color.RGBA{255, 180, 90, 255}
	scoreColor      = color.RGBA{240, 240, 240, 255}
	finishColor     = color.RGBA{200, 255, 200, 255}
)

const (
	dividerWidth = 4
	paddleInset  = 24
	// 超出此範圍的座標一律視為畫面外
	pixelLimit = 1 << 20
)

// Renderer draws snapshots onto a fixed-size canvas, preserving the court's aspect ratio
type Renderer struct {
	width   int
	height  int
	scale   float64
	offsetX float64
	offsetY float64
}

// NewRenderer width and height in pixels
func NewRenderer(width, height int) *Renderer {
	scale := math.Min(float64(width)/domain.CourtWidth, float64(height)/domain.CourtHeight)
	return &Renderer{
		width:   width,
		height:  height,
		scale:   scale,
		offsetX: (float64(width) - domain.CourtWidth*scale) / 2,
		offsetY: (float64(height) - domain.CourtHeight*scale) / 2,
	}
}

// FrameSize bytes of one rgb24 frame
func (r *Renderer) FrameSize() int {
	return r.width * r.height * 3
}

// Render returns a new image for s. Never fails for any Snapshot.
func (r *Renderer) Render(s domain.Snapshot) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	r.draw(img, s)
	return img
}

// RenderRGB packed rgb24 bytes, the layout ffmpeg reads with -pix_fmt rgb24
func (r *Renderer) RenderRGB(s domain.Snapshot) []byte {
	buf := make([]byte, r.FrameSize())
	toRGB24(r.Render(s), buf)
	return buf
}

// EncodePNG writes s as a PNG image
func (r *Renderer) EncodePNG(w io.Writer, s domain.Snapshot) error {
	if err := png.Encode(w, r.Render(s)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Frames yields one rgb24 frame per interval up to totalMs. The yielded slice is
// reused between iterations and is only valid until the next one.
func (r *Renderer) Frames(t domain.Timeline, totalMs, intervalMs int64) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		selector := domain.NewFrameSelector(t, intervalMs)
		img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
		buf := make([]byte, r.FrameSize())
		last := -1
		total := domain.FrameCount(totalMs, intervalMs)
		for frame := 0; frame < total; frame++ {
			// 同一個事件不需要重畫
			if idx := selector.Index(frame); idx != last {
				r.draw(img, t[idx].Snapshot)
				toRGB24(img, buf)
				last = idx
			}
			if !yield(buf) {
				return
			}
		}
	}
}

func (r *Renderer) draw(img *image.RGBA, s domain.Snapshot) {
	fillRect(img, img.Bounds(), backgroundColor)

	centerX := r.width / 2
	fillRect(img, image.Rect(centerX-dividerWidth/2, 0, centerX+dividerWidth/2, r.height), dividerColor)

	paddleHeight := domain.PaddleHeight * r.scale
	leftX := r.offsetX + paddleInset
	rightX := float64(r.width) - r.offsetX - paddleInset - domain.PaddleWidth
	leftTop := r.toPixels(s.LeftPaddleY, r.offsetY)
	rightTop := r.toPixels(s.RightPaddleY, r.offsetY)
	fillRect(img, rectF(leftX, leftTop, leftX+domain.PaddleWidth, leftTop+paddleHeight), paddleColor)
	fillRect(img, rectF(rightX, rightTop, rightX+domain.PaddleWidth, rightTop+paddleHeight), paddleColor)

	ballLeft := r.toPixels(s.BallX, r.offsetX) - domain.BallSize/2
	ballTop := r.toPixels(s.BallY, r.offsetY) - domain.BallSize/2
	fillEllipse(img, rectF(ballLeft, ballTop, ballLeft+domain.BallSize, ballTop+domain.BallSize), ballColor)

	score := fmt.Sprintf("%d : %d (target %d)", s.LeftScore, s.RightScore, s.TargetScore)
	drawText(img, 10, 10, score, scoreColor)
	if s.Finished {
		drawText(img, r.width/2-40, 20, "FINISH", finishColor)
	}
}

func (r *Renderer) toPixels(v, offset float64) float64 {
	return v*r.scale + offset
}

func clampPixel(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > pixelLimit:
		return pixelLimit
	case v < -pixelLimit:
		return -pixelLimit
	}
	return int(math.Round(v))
}

func rectF(x0, y0, x1, y1 float64) image.Rectangle {
	return image.Rect(clampPixel(x0), clampPixel(y0), clampPixel(x1), clampPixel(y1))
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func fillEllipse(img *image.RGBA, box image.Rectangle, c color.RGBA) {
	clip := box.Intersect(img.Bounds())
	if clip.Empty() {
		return
	}
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	rx := float64(box.Dx()) / 2
	ry := float64(box.Dy()) / 2
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		dy := (float64(y) + 0.5 - cy) / ry
		for x := clip.Min.X; x < clip.Max.X; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawText (x, y) is the top-left corner of the text box
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}

func toRGB24(img *image.RGBA, dst []byte) {
	b := img.Bounds()
	j := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			dst[j] = row[i]
			dst[j+1] = row[i+1]
			dst[j+2] = row[i+2]
			j += 3
		}
	}
}
