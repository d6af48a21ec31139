package streaming

import (
	"context"
	"sync"
	"sync/atomic"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"

	"go.uber.org/zap"
)

// Pipeline is the capture/encode stage of one session. It runs either a
// hardware encoder driving off the screen surface (lossless-capable
// links) or the software grab-and-compress fallback.
type Pipeline struct {
	hw      ports.HardwareEncoder // nil on the software path
	src     ports.FrameSource
	mode    domain.ResolutionMode
	quality atomic.Int32

	releaseOnce sync.Once
	logger      *zap.SugaredLogger
}

// NewPipeline selects the capture path. The hardware encoder is
// attempted only when the link supports lossless and hardware encode is
// enabled; any preparation failure falls back to the software path
// rather than failing the session.
func NewPipeline(
	ctx context.Context,
	factory ports.EncoderFactory,
	source ports.FrameSource,
	quality domain.LinkQuality,
	hardwareEnabled bool,
	mode domain.ResolutionMode,
	initialQuality int,
	bitrateKbps int,
	logger *zap.SugaredLogger,
) *Pipeline {
	p := &Pipeline{
		src:    source,
		mode:   mode,
		logger: logger,
	}
	p.quality.Store(int32(initialQuality))

	if quality.SupportsLossless && hardwareEnabled && factory != nil {
		hw, err := factory.NewHardwareEncoder(ctx, mode.Width, mode.Height, mode.MaxFrameRate(), bitrateKbps)
		if err != nil {
			logger.Warnw("hardware encoder unavailable, using software path", "error", err)
		} else {
			p.hw = hw
			logger.Infow("hardware encode pipeline prepared",
				"width", mode.Width, "height", mode.Height, "fps", mode.MaxFrameRate())
		}
	}
	return p
}

// Hardware reports whether the hardware path is active.
func (p *Pipeline) Hardware() bool { return p.hw != nil }

// Mode returns the selected resolution mode.
func (p *Pipeline) Mode() domain.ResolutionMode { return p.mode }

// NextFrame prefers a buffered hardware-encoded frame over a fresh
// software capture.
func (p *Pipeline) NextFrame(ctx context.Context) (*ports.Frame, error) {
	if p.hw != nil {
		if frame, ok := p.hw.NextFrame(ctx); ok {
			return frame, nil
		}
	}
	return p.src.Capture(ctx, p.mode.Width, p.mode.Height, int(p.quality.Load()))
}

// SetBitrate pushes a new bitrate into the running hardware encoder
// without restarting the pipeline. No-op on the software path.
func (p *Pipeline) SetBitrate(kbps int) {
	if p.hw != nil {
		p.hw.SetBitrate(kbps)
	}
}

// SetQuality updates the software compression quality (1..100).
func (p *Pipeline) SetQuality(q int) {
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	p.quality.Store(int32(q))
}

// Quality returns the current software compression quality.
func (p *Pipeline) Quality() int { return int(p.quality.Load()) }

// Release frees the encoder and capture surface on every exit path.
// Idempotent; double release is safe.
func (p *Pipeline) Release() {
	p.releaseOnce.Do(func() {
		if p.hw != nil {
			p.hw.Release()
		}
		if p.src != nil {
			p.src.Release()
		}
	})
}
