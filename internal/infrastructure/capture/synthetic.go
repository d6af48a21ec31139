// Package capture provides the software screen-capture path. Hosts
// with a native capture surface supply their own ports.FrameSource;
// the synthetic source here renders a moving test pattern so the
// streaming pipeline works end to end on any machine.
package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"go.uber.org/zap"

	"skybridge/internal/core/ports"
	"skybridge/pkg/optimize"
)

// SyntheticProvider hands out synthetic frame sources sharing one
// pixel-buffer pool sized for the configured surface.
type SyntheticProvider struct {
	width  int
	height int
	pool   *optimize.BytePool
	logger *zap.SugaredLogger
}

func NewSyntheticProvider(width, height int, logger *zap.SugaredLogger) *SyntheticProvider {
	return &SyntheticProvider{
		width:  width,
		height: height,
		pool:   optimize.NewBytePool(width * height * 4),
		logger: logger,
	}
}

func (p *SyntheticProvider) NewFrameSource(ctx context.Context) (ports.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Debugw("synthetic frame source created",
		"width", p.width,
		"height", p.height)
	return &syntheticSource{provider: p}, nil
}

// syntheticSource renders a phase-shifted gradient so consecutive
// frames differ and compression stays honest.
type syntheticSource struct {
	provider *SyntheticProvider
	frame    int
}

func (s *syntheticSource) Capture(ctx context.Context, width, height, quality int) (*ports.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	pix := s.pixels(width, height)
	img := &image.RGBA{
		Pix:    pix,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}
	s.render(img, width, height)
	s.frame++

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	s.provider.pool.Put(pix)
	if err != nil {
		return nil, err
	}

	return &ports.Frame{
		Data:       buf.Bytes(),
		Width:      width,
		Height:     height,
		Hardware:   false,
		CapturedAt: time.Now(),
	}, nil
}

func (s *syntheticSource) pixels(width, height int) []byte {
	need := width * height * 4
	if need == s.provider.width*s.provider.height*4 {
		return s.provider.pool.Get()
	}
	// Dimensions diverged from the configured surface; bypass the pool.
	return make([]byte, need)
}

func (s *syntheticSource) render(img *image.RGBA, width, height int) {
	phase := s.frame * 3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + phase) & 0xff),
				G: uint8((y + phase) & 0xff),
				B: uint8((x + y) & 0xff),
				A: 0xff,
			})
		}
	}
}

func (s *syntheticSource) Release() {}
