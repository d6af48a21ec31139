package services

import (
	"strings"

	"skybridge/internal/core/domain"
)

// CapabilityResolver maps raw peer names/models to a platform
// classification and the transports that platform is known to support.
// Pure string matching, no I/O.
type CapabilityResolver struct{}

func NewCapabilityResolver() *CapabilityResolver {
	return &CapabilityResolver{}
}

// Platform families that cannot host a mirroring session. Exclusion
// runs before any inclusion check in discovery results.
var excludedFamilies = []string{
	"watch",
	"blackberry",
	"symbian",
	"kaios",
}

// platformVocabulary is matched in order; more specific names first so
// "ipad" wins over "ios".
var platformVocabulary = []struct {
	keyword  string
	platform domain.Platform
}{
	{"ipad", domain.PlatformIPadOS},
	{"iphone", domain.PlatformIOS},
	{"ios", domain.PlatformIOS},
	{"mac", domain.PlatformMacOS},
	{"windows", domain.PlatformWindows},
	{"surface", domain.PlatformWindows},
	{"chromebook", domain.PlatformChromeOS},
	{"chromeos", domain.PlatformChromeOS},
	{"linux", domain.PlatformLinux},
	{"android", domain.PlatformAndroid},
	{"pixel", domain.PlatformAndroid},
	{"galaxy", domain.PlatformAndroid},
}

// ShouldExclude reports whether the name belongs to an incompatible
// platform family.
func (r *CapabilityResolver) ShouldExclude(nameOrModel string) bool {
	name := strings.ToLower(nameOrModel)
	for _, family := range excludedFamilies {
		if strings.Contains(name, family) {
			return true
		}
	}
	return false
}

// ResolvePlatform classifies a raw peer name or model string.
func (r *CapabilityResolver) ResolvePlatform(nameOrModel string) domain.Platform {
	name := strings.ToLower(nameOrModel)
	for _, entry := range platformVocabulary {
		if strings.Contains(name, entry.keyword) {
			return entry.platform
		}
	}
	return domain.PlatformUnknown
}

// TransportsFor returns the transports a platform is known to support.
// Unknown platforms get the universal bridge so negotiation still has
// an option.
func (r *CapabilityResolver) TransportsFor(platform domain.Platform) domain.HintSet {
	switch platform {
	case domain.PlatformIOS, domain.PlatformIPadOS, domain.PlatformMacOS:
		return domain.NewHintSet(domain.HintAirPlay, domain.HintBluetooth, domain.HintLan, domain.HintCloud)
	case domain.PlatformAndroid:
		return domain.NewHintSet(domain.HintWifiDirect, domain.HintBluetooth, domain.HintNfc, domain.HintLan, domain.HintCloud)
	case domain.PlatformWindows:
		return domain.NewHintSet(domain.HintWifiDirect, domain.HintBluetooth, domain.HintLan, domain.HintCloud)
	case domain.PlatformLinux:
		return domain.NewHintSet(domain.HintBluetooth, domain.HintLan, domain.HintCloud)
	case domain.PlatformChromeOS:
		return domain.NewHintSet(domain.HintLan, domain.HintCloud)
	default:
		return domain.NewHintSet(domain.HintUniversalBridge, domain.HintCloud)
	}
}
