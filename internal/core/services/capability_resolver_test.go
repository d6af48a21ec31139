package services

import (
	"testing"

	"skybridge/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityResolver_ResolvePlatform(t *testing.T) {
	resolver := NewCapabilityResolver()

	tests := []struct {
		name string
		want domain.Platform
	}{
		{"iPad Pro 12.9", domain.PlatformIPadOS},
		{"Sarah's iPhone", domain.PlatformIOS},
		{"MacBook Air", domain.PlatformMacOS},
		{"DESKTOP-WINDOWS11", domain.PlatformWindows},
		{"Surface Laptop", domain.PlatformWindows},
		{"my-linux-box", domain.PlatformLinux},
		{"HP Chromebook", domain.PlatformChromeOS},
		{"Pixel 9 Pro", domain.PlatformAndroid},
		{"Galaxy Tab S10", domain.PlatformAndroid},
		{"ANDROID-TV-STICK", domain.PlatformAndroid},
		{"mystery-device", domain.PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.ResolvePlatform(tt.name))
		})
	}
}

func TestCapabilityResolver_ShouldExclude(t *testing.T) {
	resolver := NewCapabilityResolver()

	assert.True(t, resolver.ShouldExclude("Galaxy Watch 6"))
	assert.True(t, resolver.ShouldExclude("BlackBerry Passport"))
	assert.False(t, resolver.ShouldExclude("Galaxy Tab"))
	assert.False(t, resolver.ShouldExclude("Pixel 9"))
}

func TestCapabilityResolver_ExclusionBeatsInclusion(t *testing.T) {
	resolver := NewCapabilityResolver()

	// A wearable matching an included platform keyword must still be
	// rejected before classification is consulted.
	name := "Apple Watch iPhone companion"
	assert.True(t, resolver.ShouldExclude(name))
}

func TestCapabilityResolver_TransportsFor(t *testing.T) {
	resolver := NewCapabilityResolver()

	android := resolver.TransportsFor(domain.PlatformAndroid)
	assert.True(t, android.Has(domain.HintWifiDirect))
	assert.True(t, android.Has(domain.HintNfc))
	assert.False(t, android.Has(domain.HintAirPlay))

	mac := resolver.TransportsFor(domain.PlatformMacOS)
	assert.True(t, mac.Has(domain.HintAirPlay))
	assert.False(t, mac.Has(domain.HintWifiDirect))

	unknown := resolver.TransportsFor(domain.PlatformUnknown)
	assert.True(t, unknown.Has(domain.HintUniversalBridge))
}
