package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu       sync.Mutex
	captures int
	releases int
	err      error
}

func (f *fakeSource) Capture(_ context.Context, width, height, quality int) (*ports.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.captures++
	return &ports.Frame{
		Data:       []byte{0xff, 0xd8, byte(quality)},
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	}, nil
}

func (f *fakeSource) Release() {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
}

type fakeEncoder struct {
	mu       sync.Mutex
	frames   []*ports.Frame
	bitrates []int
	releases int
}

func (f *fakeEncoder) NextFrame(_ context.Context) (*ports.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil, false
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, true
}

func (f *fakeEncoder) SetBitrate(kbps int) {
	f.mu.Lock()
	f.bitrates = append(f.bitrates, kbps)
	f.mu.Unlock()
}

func (f *fakeEncoder) Release() {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
}

type fakeFactory struct {
	encoder *fakeEncoder
	err     error
}

func (f *fakeFactory) NewHardwareEncoder(_ context.Context, _, _, _, _ int) (ports.HardwareEncoder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.encoder, nil
}

func testMode() domain.ResolutionMode {
	return domain.DefaultTierProfiles()[domain.TierStandard].SelectMode(1920, 1080)
}

func losslessQuality() domain.LinkQuality {
	return domain.LinkQuality{
		Hint:             domain.HintWifiDirect,
		ThroughputMbps:   400,
		IsDirect:         true,
		SupportsLossless: true,
	}
}

func TestPipelinePrefersHardwareWhenLossless(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	hwFrame := &ports.Frame{Data: []byte("hw"), Hardware: true}
	factory := &fakeFactory{encoder: &fakeEncoder{frames: []*ports.Frame{hwFrame}}}
	src := &fakeSource{}

	p := NewPipeline(context.Background(), factory, src, losslessQuality(), true, testMode(), 70, 4000, logger)
	require.True(t, p.Hardware())

	frame, err := p.NextFrame(context.Background())
	require.NoError(t, err)
	assert.True(t, frame.Hardware)
	assert.Equal(t, []byte("hw"), frame.Data)
	assert.Zero(t, src.captures)
}

func TestPipelineFallsThroughToSoftwareWhenNoBufferedFrame(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	factory := &fakeFactory{encoder: &fakeEncoder{}}
	src := &fakeSource{}

	p := NewPipeline(context.Background(), factory, src, losslessQuality(), true, testMode(), 70, 4000, logger)
	require.True(t, p.Hardware())

	frame, err := p.NextFrame(context.Background())
	require.NoError(t, err)
	assert.False(t, frame.Hardware)
	assert.Equal(t, 1, src.captures)
}

func TestPipelineSoftwareFallbackOnEncoderError(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	factory := &fakeFactory{err: errors.New("surface busy")}
	src := &fakeSource{}

	p := NewPipeline(context.Background(), factory, src, losslessQuality(), true, testMode(), 70, 4000, logger)
	assert.False(t, p.Hardware())

	frame, err := p.NextFrame(context.Background())
	require.NoError(t, err)
	assert.False(t, frame.Hardware)
}

func TestPipelineSkipsHardwareWithoutLossless(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	factory := &fakeFactory{encoder: &fakeEncoder{}}

	lq := losslessQuality()
	lq.SupportsLossless = false

	p := NewPipeline(context.Background(), factory, &fakeSource{}, lq, true, testMode(), 70, 4000, logger)
	assert.False(t, p.Hardware())
}

func TestPipelineQualityClamped(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	p := NewPipeline(context.Background(), nil, &fakeSource{}, domain.LinkQuality{}, false, testMode(), 70, 4000, logger)

	p.SetQuality(0)
	assert.Equal(t, 1, p.Quality())
	p.SetQuality(150)
	assert.Equal(t, 100, p.Quality())
	p.SetQuality(85)
	assert.Equal(t, 85, p.Quality())
}

func TestPipelineReleaseIsIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	enc := &fakeEncoder{}
	factory := &fakeFactory{encoder: enc}
	src := &fakeSource{}

	p := NewPipeline(context.Background(), factory, src, losslessQuality(), true, testMode(), 70, 4000, logger)
	p.Release()
	p.Release()

	assert.Equal(t, 1, enc.releases)
	assert.Equal(t, 1, src.releases)
}
