package domain

import "math"

// ResolutionMode is one entry in a tier's resolution/frame-rate menu.
type ResolutionMode struct {
	Name       string
	Width      int
	Height     int
	FrameRates []int
}

// MaxFrameRate returns the highest rate the mode declares.
func (m ResolutionMode) MaxFrameRate() int {
	max := 0
	for _, r := range m.FrameRates {
		if r > max {
			max = r
		}
	}
	return max
}

// NearestFrameRate snaps a target fps onto the mode's declared list.
// The result is always a member of FrameRates.
func (m ResolutionMode) NearestFrameRate(target float64) int {
	if len(m.FrameRates) == 0 {
		return 0
	}
	best := m.FrameRates[0]
	bestDiff := math.Abs(float64(best) - target)
	for _, r := range m.FrameRates[1:] {
		if d := math.Abs(float64(r) - target); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best
}

// Tier gates the maximum resolution and frame rate an account may stream at.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierElite    Tier = "elite"
)

// TierProfile is the menu of resolution modes an account tier unlocks.
type TierProfile struct {
	Tier  Tier
	Modes []ResolutionMode
}

// Minimum capture dimensions; selections never clamp below this to
// avoid degenerate captures.
const (
	MinCaptureWidth  = 720
	MinCaptureHeight = 480
)

// SelectMode picks the highest mode whose long/short edges are within 2×
// the device's actual edges, never upscaling beyond the tier's ceiling.
// If the chosen mode still exceeds the device's native resolution it is
// scaled down, clamped to the minimum capture dimensions.
func (p TierProfile) SelectMode(deviceWidth, deviceHeight int) ResolutionMode {
	devLong, devShort := deviceWidth, deviceHeight
	if devShort > devLong {
		devLong, devShort = devShort, devLong
	}

	var chosen *ResolutionMode
	for i := range p.Modes {
		m := &p.Modes[i]
		long, short := m.Width, m.Height
		if short > long {
			long, short = short, long
		}
		if long > devLong*2 || short > devShort*2 {
			continue
		}
		if chosen == nil || m.Width*m.Height > chosen.Width*chosen.Height {
			chosen = m
		}
	}
	if chosen == nil {
		// Every mode overshoots; take the smallest and scale it down.
		chosen = &p.Modes[0]
		for i := range p.Modes {
			if p.Modes[i].Width*p.Modes[i].Height < chosen.Width*chosen.Height {
				chosen = &p.Modes[i]
			}
		}
	}

	mode := *chosen
	if mode.Width > deviceWidth || mode.Height > deviceHeight {
		scale := math.Min(float64(deviceWidth)/float64(mode.Width), float64(deviceHeight)/float64(mode.Height))
		mode.Width = int(float64(mode.Width) * scale)
		mode.Height = int(float64(mode.Height) * scale)
	}
	if mode.Width < MinCaptureWidth {
		mode.Width = MinCaptureWidth
	}
	if mode.Height < MinCaptureHeight {
		mode.Height = MinCaptureHeight
	}
	return mode
}

// DefaultTierProfiles returns the built-in tier menu.
func DefaultTierProfiles() map[Tier]TierProfile {
	return map[Tier]TierProfile{
		TierStandard: {
			Tier: TierStandard,
			Modes: []ResolutionMode{
				{Name: "sd", Width: 1280, Height: 720, FrameRates: []int{15, 24, 30}},
				{Name: "hd", Width: 1920, Height: 1080, FrameRates: []int{15, 24, 30}},
			},
		},
		TierPremium: {
			Tier: TierPremium,
			Modes: []ResolutionMode{
				{Name: "hd", Width: 1920, Height: 1080, FrameRates: []int{24, 30, 60}},
				{Name: "qhd", Width: 2560, Height: 1440, FrameRates: []int{24, 30, 60}},
			},
		},
		TierElite: {
			Tier: TierElite,
			Modes: []ResolutionMode{
				{Name: "qhd", Width: 2560, Height: 1440, FrameRates: []int{30, 60, 120}},
				{Name: "uhd", Width: 3840, Height: 2160, FrameRates: []int{30, 60, 120}},
			},
		},
	}
}
